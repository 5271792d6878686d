// Command mega-http-serve exposes the Git smart HTTP surface
// (info/refs, git-upload-pack, git-receive-pack) and the Git LFS batch/lock
// API over a gorilla/mux router, following the teacher's
// pkg/serve/httpserver Server{*http.Server, *mux.Router} shape.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"net/http"
	"path/filepath"
	"strconv"
	"time"

	"github.com/gorilla/mux"
	"github.com/sirupsen/logrus"

	"github.com/mega-forge/mega/modules/config"
	"github.com/mega-forge/mega/modules/lfs"
	"github.com/mega-forge/mega/modules/pack"
	"github.com/mega-forge/mega/modules/store"
	"github.com/mega-forge/mega/modules/transport"
)

type server struct {
	cfg         *config.Config
	objectsRoot string
	locks       *store.LockStore
	objects     *store.S3ObjectStore
	decodeCache pack.DecodeCache
}

const (
	defaultCacheNumCounters = 1e7
	defaultCacheMaxCost     = 256 << 20
	defaultSpillWorkers     = 4
)

// openDecodeCache builds the bounded decode cache every git-receive-pack
// call shares, sized from cfg.Cache (itself overridable via
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

func main() {
	configPath := flag.String("config", "", "path to config.toml (defaults to $MEGA_CONFIG or ./config.toml)")
	listen := flag.String("listen", ":8080", "address to listen on")
	objectsRoot := flag.String("objects-root", "./data/objects", "root directory repositories' loose objects live under")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		logrus.WithError(err).Fatal("load config")
	}

	ctx := context.Background()
	objects, err := store.NewS3ObjectStore(ctx, cfg.S3.Bucket)
	if err != nil {
		logrus.WithError(err).Fatal("open s3 object store")
	}
	db, err := store.OpenDB(cfg.Database.MakeConfig())
	if err != nil {
		logrus.WithError(err).Fatal("dial lock store database")
	}
	decodeCache, err := openDecodeCache(cfg, *objectsRoot)
	if err != nil {
		logrus.WithError(err).Fatal("open pack decode cache")
	}
	defer decodeCache.Close()

	s := &server{
		cfg:         cfg,
		objectsRoot: *objectsRoot,
		objects:     objects,
		locks:       store.NewLockStore(db),
		decodeCache: decodeCache,
	}

	r := mux.NewRouter()
	r.HandleFunc("/{repo:.+}/info/refs", s.infoRefs).Methods(http.MethodGet)
	r.HandleFunc("/{repo:.+}/git-upload-pack", s.servicePost("git-upload-pack")).Methods(http.MethodPost)
	r.HandleFunc("/{repo:.+}/git-receive-pack", s.servicePost("git-receive-pack")).Methods(http.MethodPost)
	r.HandleFunc("/{repo:.+}/info/lfs/objects/batch", s.lfsBatch).Methods(http.MethodPost)
	r.HandleFunc("/{repo:.+}/info/lfs/locks", s.lfsListOrCreateLock).Methods(http.MethodGet, http.MethodPost)
	r.HandleFunc("/{repo:.+}/info/lfs/locks/{id}/unlock", s.lfsUnlock).Methods(http.MethodPost)
	r.HandleFunc("/{repo:.+}/info/lfs/locks/verify", s.lfsVerifyLocks).Methods(http.MethodPost)

	httpServer := &http.Server{
		Addr:         *listen,
		Handler:      r,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
	}
	logrus.WithField("addr", *listen).Info("mega-http-serve listening")
	if err := httpServer.ListenAndServe(); err != nil {
		logrus.WithError(err).Fatal("http server exited")
	}
}

func (s *server) backend(repoPath string) (transport.Backend, error) {
	refs, err := store.NewRefStore(s.cfg.Database.MakeConfig(), repositoryID(repoPath))
	if err != nil {
		return nil, err
	}
	objects := store.NewFileObjectDB(filepath.Join(s.objectsRoot, repoPath))
	return store.NewBackend(refs, objects), nil
}

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

func (s *server) infoRefs(w http.ResponseWriter, r *http.Request) {
	repoPath := mux.Vars(r)["repo"]
	service := r.URL.Query().Get("service")
	backend, err := s.backend(repoPath)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	refs, err := backend.Refs(r.Context())
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	head, err := backend.Head(r.Context())
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/x-"+service+"-advertisement")
	if err := transport.WriteAdvertisement(w, service, refs, head); err != nil {
		logrus.WithError(err).Warn("write advertisement")
	}
}

func (s *server) servicePost(service string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		repoPath := mux.Vars(r)["repo"]
		backend, err := s.backend(repoPath)
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", "application/x-"+service+"-result")
		switch service {
		case "git-upload-pack":
			err = transport.UploadPack(r.Context(), r.Body, w, backend)
		case "git-receive-pack":
			err = transport.ReceivePack(r.Context(), r.Body, w, backend, s.decodeCache)
		}
		if err != nil {
			logrus.WithError(err).Warn("service failed")
		}
	}
}

func (s *server) lfsBatch(w http.ResponseWriter, r *http.Request) {
	var req lfs.BatchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusUnprocessableEntity)
		return
	}
	resp := lfs.Batch(r.Context(), s.objects, &req)
	w.Header().Set("Content-Type", "application/vnd.git-lfs+json")
	_ = json.NewEncoder(w).Encode(resp)
}

func (s *server) lfsListOrCreateLock(w http.ResponseWriter, r *http.Request) {
	if s.locks == nil {
		http.Error(w, "lock store not configured", http.StatusServiceUnavailable)
		return
	}
	switch r.Method {
	case http.MethodPost:
		var body struct {
			Path string `json:"path"`
			Ref  struct {
				Name string `json:"name"`
			} `json:"ref"`
		}
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			http.Error(w, err.Error(), http.StatusUnprocessableEntity)
			return
		}
		owner := r.Header.Get("X-Mega-User")
		l, err := s.locks.Create(r.Context(), body.Ref.Name, body.Path, owner)
		if err != nil {
			if existing, ok := lfs.AsLockConflict(err); ok {
				w.WriteHeader(http.StatusConflict)
				_ = json.NewEncoder(w).Encode(map[string]any{"lock": existing, "message": "already locked"})
				return
			}
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		w.WriteHeader(http.StatusCreated)
		_ = json.NewEncoder(w).Encode(map[string]any{"lock": l})
	case http.MethodGet:
		cursor := r.URL.Query().Get("cursor")
		path := r.URL.Query().Get("path")
		limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
		locks, next, err := s.locks.List(r.Context(), path, cursor, limit)
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		_ = json.NewEncoder(w).Encode(map[string]any{"locks": locks, "next_cursor": next})
	}
}

func (s *server) lfsUnlock(w http.ResponseWriter, r *http.Request) {
	if s.locks == nil {
		http.Error(w, "lock store not configured", http.StatusServiceUnavailable)
		return
	}
	id := mux.Vars(r)["id"]
	var body struct {
		Force bool `json:"force"`
	}
	_ = json.NewDecoder(r.Body).Decode(&body)
	owner := r.Header.Get("X-Mega-User")
	l, err := s.locks.Delete(r.Context(), id, owner, body.Force)
	if err != nil {
		if lfs.IsLockNotHeld(err) {
			http.Error(w, err.Error(), http.StatusForbidden)
			return
		}
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	_ = json.NewEncoder(w).Encode(map[string]any{"lock": l})
}

func (s *server) lfsVerifyLocks(w http.ResponseWriter, r *http.Request) {
	if s.locks == nil {
		http.Error(w, "lock store not configured", http.StatusServiceUnavailable)
		return
	}
	var body struct {
		Ref struct {
			Name string `json:"name"`
		} `json:"ref"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		http.Error(w, err.Error(), http.StatusUnprocessableEntity)
		return
	}
	who := r.Header.Get("X-Mega-User")
	res, err := lfs.Verify(r.Context(), s.locks, body.Ref.Name, who)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	_ = json.NewEncoder(w).Encode(res)
}
