package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/parishadmk/tablekeeper/internal/cluster/meta"
	"github.com/parishadmk/tablekeeper/pkg/client"
)

var baseURL string

func main() {
	rootCmd := &cobra.Command{
		Use:   "tablectl",
		Short: "CLI tool to interact with the tablekeeper master",
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			if baseURL == "" {
				baseURL = os.Getenv("MASTER_BASE_URL")
				if baseURL == "" {
					baseURL = "http://master:8080"
				}
			}
		},
	}

	rootCmd.PersistentFlags().StringVar(&baseURL, "url", "", "Base URL of the master (can also use MASTER_BASE_URL env variable)")

	rootCmd.AddCommand(
		pingCmd(),
		createTableCmd(),
		statusCmd(),
	)

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func newClient() *client.Client {
	return client.NewClient(baseURL)
}

func pingCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "ping",
		Short: "Check connection to the master",
		Run: func(cmd *cobra.Command, args []string) {
			c := newClient()
			if err := c.CheckConnection(); err != nil {
				fmt.Println("Ping failed:", err)
				os.Exit(1)
			}
			fmt.Println("Ping successful")
		},
	}
}

func createTableCmd() *cobra.Command {
	var name string
	var families []string
	var splitKeys []string
	cmd := &cobra.Command{
		Use:   "create-table",
		Short: "Create a table with one region per split interval",
		Run: func(cmd *cobra.Command, args []string) {
			desc := meta.TableDescriptor{Name: name}
			for _, f := range families {
				desc.Families = append(desc.Families, meta.ColumnFamily{Name: f})
			}

			c := newClient()
			if err := c.CreateTable(desc, splitKeys); err != nil {
				fmt.Println("Create table failed:", err)
				os.Exit(1)
			}
			fmt.Printf("Table %q created with %d regions\n", name, len(splitKeys)+1)
		},
	}
	cmd.Flags().StringVar(&name, "name", "", "Table name")
	cmd.Flags().StringArrayVar(&families, "family", nil, "Column family (repeatable)")
	cmd.Flags().StringArrayVar(&splitKeys, "split-key", nil, "Region split key (repeatable)")
	cmd.MarkFlagRequired("name")
	cmd.MarkFlagRequired("family")
	return cmd
}

func statusCmd() *cobra.Command {
	var name string
	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show lifecycle state and regions of a table",
		Run: func(cmd *cobra.Command, args []string) {
			c := newClient()
			status, err := c.TableStatus(name)
			if err != nil {
				fmt.Println("Status failed:", err)
				os.Exit(1)
			}
			fmt.Printf("Table %q: %s\n", status.Name, status.State)
			for _, p := range status.Partitions {
				fmt.Printf("  region %s %s flushed=%v\n", p.ID, p.Boundary, p.Flushed)
			}
		},
	}
	cmd.Flags().StringVar(&name, "name", "", "Table name")
	cmd.MarkFlagRequired("name")
	return cmd
}
