// Package node assembles the replica: it owns the database, the gateway
// client and the sync service, and exposes a small status endpoint.
package node

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	gosync "sync"
	"time"

	gethrawdb "github.com/ethereum/go-ethereum/core/rawdb"
	"github.com/ethereum/go-ethereum/ethdb"
	"github.com/ethereum/go-ethereum/log"
	"github.com/gofrs/flock"
	"github.com/rs/cors"

	"github.com/lizatkinson/papyrus/storage"
	"github.com/lizatkinson/papyrus/sync"
	"github.com/lizatkinson/papyrus/sync/central"
)

// ErrDatadirUsed is returned when the datadir is locked by another instance.
var ErrDatadirUsed = errors.New("datadir already used by another process")

// Node is a running replica instance.
type Node struct {
	config  *Config
	dirLock *flock.Flock

	db      ethdb.Database
	storage *storage.Storage
	sync    *sync.Sync

	httpServer *http.Server

	cancel   context.CancelFunc
	syncDone chan error
	stopOnce gosync.Once
}

// New creates a node from the given config: it locks the datadir, opens the
// database and wires the sync service. Start actually begins syncing.
func New(conf *Config) (*Node, error) {
	// Copy the config so later mutations by the caller don't reach us.
	confCopy := *conf
	conf = &confCopy

	if conf.DataDir == "" {
		return nil, errors.New("node: no data directory configured")
	}
	if err := os.MkdirAll(conf.DataDir, 0700); err != nil {
		return nil, err
	}
	dirLock := flock.New(filepath.Join(conf.DataDir, "LOCK"))
	locked, err := dirLock.TryLock()
	if err != nil {
		return nil, err
	}
	if !locked {
		return nil, ErrDatadirUsed
	}

	db, err := gethrawdb.NewLevelDBDatabase(
		filepath.Join(conf.DataDir, "chaindata"),
		conf.DatabaseCache,
		conf.DatabaseHandles,
		"papyrus/db/chaindata/",
		false,
	)
	if err != nil {
		dirLock.Unlock()
		return nil, err
	}

	store := storage.New(db)
	client := central.NewClient(conf.Central)

	n := &Node{
		config:   conf,
		dirLock:  dirLock,
		db:       db,
		storage:  store,
		sync:     sync.New(conf.Sync, client, store),
		syncDone: make(chan error, 1),
	}
	log.Info("Created replica node", "network", conf.Chain.Name, "datadir", conf.DataDir)
	return n, nil
}

// Sync returns the node's sync service, for status subscriptions.
func (n *Node) Sync() *sync.Sync {
	return n.sync
}

// Start begins syncing and serves the status endpoint.
func (n *Node) Start() error {
	ctx, cancel := context.WithCancel(context.Background())
	n.cancel = cancel

	go func() {
		n.syncDone <- n.sync.Run(ctx)
	}()

	if n.config.HTTPHost != "" {
		mux := http.NewServeMux()
		mux.Handle("/status", &statusHandler{storage: n.storage, chain: n.config.Chain})
		handler := cors.New(cors.Options{AllowedOrigins: n.config.HTTPCors}).Handler(mux)
		n.httpServer = &http.Server{
			Addr:              fmt.Sprintf("%s:%d", n.config.HTTPHost, n.config.HTTPPort),
			Handler:           handler,
			ReadHeaderTimeout: 5 * time.Second,
		}
		go func() {
			if err := n.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				log.Error("Status endpoint failed", "err", err)
			}
		}()
		log.Info("Status endpoint opened", "addr", n.httpServer.Addr)
	}
	return nil
}

// Wait blocks until the sync terminates, returning its error.
func (n *Node) Wait() error {
	err := <-n.syncDone
	n.syncDone <- err
	return err
}

// Close stops the sync, the status endpoint and releases the datadir. It is
// safe to call more than once.
func (n *Node) Close() error {
	var closeErr error
	n.stopOnce.Do(func() {
		if n.cancel != nil {
			n.cancel()
			err := <-n.syncDone
			n.syncDone <- err // keep the result available for Wait
			if err != nil && !errors.Is(err, context.Canceled) {
				log.Error("Sync terminated with error", "err", err)
			}
		}
		if n.httpServer != nil {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			n.httpServer.Shutdown(shutdownCtx)
			cancel()
		}
		if err := n.db.Close(); err != nil {
			closeErr = err
		}
		if err := n.dirLock.Unlock(); err != nil && closeErr == nil {
			closeErr = err
		}
	})
	return closeErr
}
