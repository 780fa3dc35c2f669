package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/parishadmk/tablekeeper/internal/cluster/catalog"
	"github.com/parishadmk/tablekeeper/internal/cluster/coordination"
	"github.com/parishadmk/tablekeeper/internal/cluster/etcd"
	"github.com/parishadmk/tablekeeper/internal/cluster/master"
	"github.com/parishadmk/tablekeeper/internal/cluster/meta"
	"github.com/parishadmk/tablekeeper/internal/cluster/region"
)

var (
	listenAddr    string
	etcdEndpoints string
	storageRoot   string
	coordTimeout  time.Duration
	maxBringup    int
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "master",
		Short: "tablekeeper master: coordinates table creation and region assignment",
		Run: func(cmd *cobra.Command, args []string) {
			if err := run(); err != nil {
				log.Fatalf("[main (master)] %v", err)
			}
		},
	}

	rootCmd.Flags().StringVar(&listenAddr, "listen", ":8080", "HTTP listen address")
	rootCmd.Flags().StringVar(&etcdEndpoints, "etcd-endpoints", "", "comma-separated etcd endpoints (or ETCD_ENDPOINTS)")
	rootCmd.Flags().StringVar(&storageRoot, "root", "/var/lib/tablekeeper", "shared storage root for table and region files")
	rootCmd.Flags().DurationVar(&coordTimeout, "coordination-timeout", 10*time.Second, "coordination store availability timeout")
	rootCmd.Flags().IntVar(&maxBringup, "max-bringup", 10, "maximum concurrent region initializations")

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	endpoints := []string{"http://etcd:2379"}
	if etcdEndpoints == "" {
		etcdEndpoints = os.Getenv("ETCD_ENDPOINTS")
	}
	if etcdEndpoints != "" {
		endpoints = strings.Split(etcdEndpoints, ",")
	}

	store, err := etcd.NewStore(endpoints)
	if err != nil {
		return fmt.Errorf("failed to connect to etcd: %w", err)
	}
	defer store.Close()

	cfg := master.DefaultConfig()
	cfg.CoordinationTimeout = coordTimeout
	cfg.MaxBringupWorkers = maxBringup

	m := master.NewMaster(
		cfg,
		coordination.NewGuard(store, cfg.CoordinationTimeout),
		catalog.New(store),
		regionStorage{region.NewStore(storageRoot)},
		master.NewHTTPAssigner(),
		coordination.NewDirectory(store),
	)

	log.Printf("[main (master)] listening on %s, storage root %s", listenAddr, storageRoot)
	return m.Start(context.Background(), listenAddr)
}

// regionStorage adapts the concrete region store to the master's
// storage contract.
type regionStorage struct {
	*region.Store
}

func (s regionStorage) Initialize(ctx context.Context, desc *meta.TableDescriptor, boundary meta.PartitionBoundary) (master.RegionHandle, error) {
	r, err := s.Store.Initialize(ctx, desc, boundary)
	if err != nil {
		return nil, err
	}
	return r, nil
}
