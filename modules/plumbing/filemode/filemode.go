// Package filemode is the POSIX-subset file mode type tree entries carry,
// mirroring the bit layout Git itself uses (a 16-bit S_IFMT type field plus
// permission bits).
package filemode

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"
)

type FileMode uint32

const (
	Empty      FileMode = 0
	Dir        FileMode = 0o040000
	Regular    FileMode = 0o100644
	Deprecated FileMode = 0o100664
	Executable FileMode = 0o100755
	Symlink    FileMode = 0o120000
	Submodule  FileMode = 0o160000

	// Fragments masks the POSIX file-type bits (S_IFMT), isolating a mode's
	// type from its permission bits.
	Fragments FileMode = 0o170000
)

func (m FileMode) String() string {
	return strconv.FormatUint(uint64(m), 8)
}

// ToOSFileMode converts to the nearest os.FileMode, classifying by the
// type bits in Fragments since permission bits vary (e.g. a historical
// Deprecated regular file still carries the Regular type).
func (m FileMode) ToOSFileMode() (os.FileMode, error) {
	switch m & Fragments {
	case Empty:
		return 0, nil
	case Dir:
		return os.ModeDir | 0o755, nil
	case Symlink:
		return os.ModeSymlink, nil
	case Submodule:
		return os.ModeDir | os.ModeIrregular, nil
	case Regular & Fragments:
		// Regular, Deprecated and Executable share this type; the execute
		// bits tell them apart.
		if m&0o111 != 0 {
			return 0o755, nil
		}
		return 0o644, nil
	default:
		return 0, fmt.Errorf("filemode: unsupported mode %o", uint32(m))
	}
}

func (m FileMode) MarshalJSON() ([]byte, error) {
	return json.Marshal(uint32(m))
}

func (m *FileMode) UnmarshalJSON(data []byte) error {
	var v uint32
	if err := json.Unmarshal(data, &v); err != nil {
		return err
	}
	*m = FileMode(v)
	return nil
}
