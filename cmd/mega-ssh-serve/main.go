// Command mega-ssh-serve is a thin SSH surface over the core upload-pack /
// receive-pack entry points: it owns nothing about the Git wire protocol
// itself, only session plumbing (command parsing and exit status) before
// handing the connection's reader/writer to modules/transport.
package main

import (
	"context"
	"flag"
	"fmt"
	"path/filepath"
	"regexp"
	"strings"

	gliderssh "github.com/gliderlabs/ssh"
	"github.com/sirupsen/logrus"

	"github.com/mega-forge/mega/modules/config"
	"github.com/mega-forge/mega/modules/pack"
	"github.com/mega-forge/mega/modules/store"
	"github.com/mega-forge/mega/modules/transport"
)

const (
	defaultCacheNumCounters = 1e7
	defaultCacheMaxCost     = 256 << 20
	defaultSpillWorkers     = 4
)

// openDecodeCache builds the bounded decode cache every git-receive-pack
// session shares, sized from cfg.Cache (itself overridable via
// PACK_DECODE_MEM_SIZE / PACK_DECODE_CACHE_PATH).
func openDecodeCache(cfg *config.Config, objectsRoot string) (pack.DecodeCache, error) {
	numCounters := cfg.Cache.NumCounters
	if numCounters == 0 {
		numCounters = defaultCacheNumCounters
	}
	maxCost := cfg.Cache.MaxCost
	if maxCost == 0 {
		maxCost = defaultCacheMaxCost
	}
	spillDir := cfg.Cache.SpillPath
	if spillDir == "" {
		spillDir = filepath.Join(objectsRoot, ".pack-cache")
	}
	return pack.NewDecodeCache(numCounters, maxCost, spillDir, defaultSpillWorkers)
}

var commandRE = regexp.MustCompile(`^(git-upload-pack|git-receive-pack)\s+'([^']+)'$`)

func main() {
	configPath := flag.String("config", "", "path to config.toml (defaults to $MEGA_CONFIG or ./config.toml)")
	listen := flag.String("listen", ":2222", "address to listen on")
	root := flag.String("objects-root", "./data/objects", "root directory repositories' loose objects live under")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		logrus.WithError(err).Fatal("load config")
	}
	decodeCache, err := openDecodeCache(cfg, *root)
	if err != nil {
		logrus.WithError(err).Fatal("open pack decode cache")
	}
	defer decodeCache.Close()

	srv := &gliderssh.Server{
		Addr:    *listen,
		Handler: newHandler(cfg, *root, decodeCache),
	}
	logrus.WithField("addr", *listen).Info("mega-ssh-serve listening")
	if err := srv.ListenAndServe(); err != nil {
		logrus.WithError(err).Fatal("ssh server exited")
	}
}

func newHandler(cfg *config.Config, objectsRoot string, decodeCache pack.DecodeCache) gliderssh.Handler {
	return func(s gliderssh.Session) {
		cmd := strings.Join(s.Command(), " ")
		m := commandRE.FindStringSubmatch(cmd)
		if m == nil {
			fmt.Fprintf(s.Stderr(), "mega: unsupported command %q\n", cmd)
			_ = s.Exit(1)
			return
		}
		service, repoPath := m[1], m[2]
		backend, err := openBackend(s.Context(), cfg, objectsRoot, repoPath)
		if err != nil {
			fmt.Fprintf(s.Stderr(), "mega: %v\n", err)
			_ = s.Exit(1)
			return
		}

		ctx := s.Context()
		switch service {
		case "git-upload-pack":
			err = transport.UploadPack(ctx, s, s, backend)
		case "git-receive-pack":
			err = transport.ReceivePack(ctx, s, s, backend, decodeCache)
		}
		if err != nil {
			fmt.Fprintf(s.Stderr(), "mega: %v\n", err)
			_ = s.Exit(1)
			return
		}
		_ = s.Exit(0)
	}
}

func openBackend(ctx context.Context, cfg *config.Config, objectsRoot, repoPath string) (transport.Backend, error) {
	refs, err := store.NewRefStore(cfg.Database.MakeConfig(), repositoryID(repoPath))
	if err != nil {
		return nil, err
	}
	objects := store.NewFileObjectDB(filepath.Join(objectsRoot, repoPath))
	return store.NewBackend(refs, objects), nil
}

// repositoryID derives the repository row id the ref store scopes queries
// to; a real deployment resolves this via the namespace/repository lookup
// the teacher's pkg/serve/database does, which is out of scope here.
func repositoryID(repoPath string) int64 {
	var id int64
	for _, r := range repoPath {
		id = id*31 + int64(r)
	}
	if id < 0 {
		id = -id
	}
	return id
}
