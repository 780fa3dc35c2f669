package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/parishadmk/tablekeeper/internal/cluster/coordination"
	"github.com/parishadmk/tablekeeper/internal/cluster/etcd"
	"github.com/parishadmk/tablekeeper/internal/cluster/region"
	"github.com/parishadmk/tablekeeper/internal/cluster/worker"
)

var (
	workerID      string
	listenAddr    string
	advertiseAddr string
	masterAddr    string
	etcdEndpoints string
	storageRoot   string
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "worker",
		Short: "tablekeeper worker: hosts table regions",
		Run: func(cmd *cobra.Command, args []string) {
			if err := run(); err != nil {
				log.Fatalf("[main (worker)] %v", err)
			}
		},
	}

	rootCmd.Flags().StringVar(&workerID, "id", "", "worker id (or WORKER-ID env variable)")
	rootCmd.Flags().StringVar(&listenAddr, "listen", "0.0.0.0:8000", "HTTP listen address")
	rootCmd.Flags().StringVar(&advertiseAddr, "advertise", "", "address other nodes reach this worker at")
	rootCmd.Flags().StringVar(&masterAddr, "master", "http://master:8080", "master base URL")
	rootCmd.Flags().StringVar(&etcdEndpoints, "etcd-endpoints", "", "comma-separated etcd endpoints (or ETCD_ENDPOINTS)")
	rootCmd.Flags().StringVar(&storageRoot, "root", "/var/lib/tablekeeper", "shared storage root for table and region files")

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	if workerID == "" {
		workerID = os.Getenv("WORKER-ID")
	}
	if workerID == "" {
		return fmt.Errorf("worker id is required (flag --id or WORKER-ID)")
	}
	if advertiseAddr == "" {
		advertiseAddr = fmt.Sprintf("http://worker-%s:8000", workerID)
	}

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

	w := worker.NewWorker(workerID, masterAddr, advertiseAddr, region.NewStore(storageRoot), coordination.NewDirectory(store))
	log.Printf("[main (worker)] worker %s listening on %s", workerID, listenAddr)
	return w.Start(context.Background(), listenAddr)
}
