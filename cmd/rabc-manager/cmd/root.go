// Copyright 2024-2026 The Rabc Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//      http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package cmd initializes the rabc manager command tree.
package cmd

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"k8s.io/client-go/kubernetes"
	"k8s.io/client-go/rest"
	"k8s.io/client-go/tools/clientcmd"
	"k8s.io/klog/v2"

	"github.com/rabc-io/rabc/internal/api"
	"github.com/rabc-io/rabc/pkg/audit"
	"github.com/rabc-io/rabc/pkg/consts"
	"github.com/rabc-io/rabc/pkg/identity/bindings"
	"github.com/rabc-io/rabc/pkg/identity/issuer"
	"github.com/rabc-io/rabc/pkg/identity/lifecycle"
	"github.com/rabc-io/rabc/pkg/identity/roles"
	"github.com/rabc-io/rabc/pkg/identity/serviceaccount"
	"github.com/rabc-io/rabc/pkg/mirror"
	"github.com/rabc-io/rabc/pkg/mirror/fake"
	"github.com/rabc-io/rabc/pkg/storage"
	"github.com/rabc-io/rabc/pkg/utils/restcfg"
)

type options struct {
	listenAddress string
	dataDir       string
	clusterName   string
	kubeconfig    string
	mysqlDSN      string
	dev           bool
	pollInterval  time.Duration
	pollTimeout   time.Duration
}

// NewRootCommand initializes the manager command.
func NewRootCommand(ctx context.Context) *cobra.Command {
	var opts options

	rootCmd := &cobra.Command{
		Use:   "rabc-manager",
		Short: "Manage cluster identities, credentials and role bindings",
		Long: `rabc-manager provisions Kubernetes users through the certificates API,
mirrors the access-control state in a relational database, and revokes
credentials and bindings when a user is disabled or deleted.`,
		SilenceUsage: true,
		RunE: func(_ *cobra.Command, _ []string) error {
			return run(ctx, &opts)
		},
	}

	flagset := flag.NewFlagSet("klog", flag.PanicOnError)
	klog.InitFlags(flagset)
	restcfg.InitFlags(flagset)
	rootCmd.PersistentFlags().AddGoFlagSet(flagset)

	rootCmd.Flags().StringVar(&opts.listenAddress, "listen-address", consts.DefaultListenAddress,
		"The address the API server listens on.")
	rootCmd.Flags().StringVar(&opts.dataDir, "data-dir", consts.DefaultDataDir,
		"The directory holding the issued credential bundles.")
	rootCmd.Flags().StringVar(&opts.clusterName, "cluster-name", "kubernetes",
		"The cluster name embedded in the generated kubeconfigs.")
	rootCmd.Flags().StringVar(&opts.kubeconfig, "kubeconfig", os.Getenv("KUBECONFIG"),
		"The path of the kubeconfig used to contact the cluster (defaults to in-cluster configuration).")
	rootCmd.Flags().StringVar(&opts.mysqlDSN, "mysql-dsn", "",
		"The DSN of the mirror database (defaults to the MYSQL_* environment variables).")
	rootCmd.Flags().BoolVar(&opts.dev, "dev", false,
		"Run with an in-memory mirror store, losing all records on restart (no database required).")
	rootCmd.Flags().DurationVar(&opts.pollInterval, "csr-poll-interval", issuer.DefaultPollInterval,
		"The interval between two subsequent checks for the signed certificate.")
	rootCmd.Flags().DurationVar(&opts.pollTimeout, "csr-poll-timeout", issuer.DefaultPollTimeout,
		"The maximum time to wait for a certificate to be signed.")

	return rootCmd
}

func run(ctx context.Context, opts *options) error {
	// A missing .env file is fine, the environment may be set externally.
	_ = godotenv.Load()

	config, err := restConfig(opts.kubeconfig)
	if err != nil {
		return fmt.Errorf("unable to load the cluster configuration: %w", err)
	}
	restcfg.SetRateLimiter(config)
	client := kubernetes.NewForConfigOrDie(config)

	ca, err := clusterCA(config)
	if err != nil {
		return fmt.Errorf("unable to retrieve the cluster CA: %w", err)
	}

	var store mirror.Store
	if opts.dev {
		klog.Warning("Running in dev mode: the mirror store is in-memory and will be lost on restart")
		store = fake.NewStore()
	} else {
		store, err = mirror.Open(mysqlDSN(opts.mysqlDSN))
		if err != nil {
			return fmt.Errorf("unable to open the mirror database: %w", err)
		}
	}

	creds := storage.NewCredentialStore(opts.dataDir)
	cluster := issuer.ClusterInfo{Name: opts.clusterName, Server: config.Host, CA: ca}
	credIssuer := issuer.New(client, creds, cluster,
		issuer.WithPollInterval(opts.pollInterval),
		issuer.WithPollTimeout(opts.pollTimeout))

	sink := audit.NewStoreSink(store, consts.DefaultActor)
	users := lifecycle.NewManager(store, creds, credIssuer,
		bindings.NewIndex(store), bindings.NewRevoker(client, store), sink)

	server := api.NewServer(users, bindings.NewManager(client, store),
		roles.NewManager(client, store), serviceaccount.NewManager(client, creds, store, cluster),
		store, client)
	return server.Run(ctx, opts.listenAddress)
}

// restConfig loads the kubeconfig when a path is given and falls back to the
// in-cluster configuration otherwise.
func restConfig(kubeconfig string) (*rest.Config, error) {
	if kubeconfig != "" {
		return clientcmd.BuildConfigFromFlags("", kubeconfig)
	}
	return rest.InClusterConfig()
}

// clusterCA extracts the CA bundle of the cluster from the rest
// configuration, so that it can be embedded in the generated kubeconfigs.
func clusterCA(config *rest.Config) ([]byte, error) {
	if len(config.CAData) > 0 {
		return config.CAData, nil
	}
	if config.CAFile != "" {
		return os.ReadFile(config.CAFile)
	}
	return nil, fmt.Errorf("no certification authority configured")
}

// mysqlDSN resolves the mirror database DSN, preferring the explicit flag,
// then the MYSQL_DSN variable, then the individual MYSQL_* variables.
func mysqlDSN(flagValue string) string {
	if flagValue != "" {
		return flagValue
	}
	if dsn := os.Getenv("MYSQL_DSN"); dsn != "" {
		return dsn
	}

	host := getenv("MYSQL_HOST", "127.0.0.1")
	port := getenv("MYSQL_PORT", "3306")
	user := getenv("MYSQL_USER", "root")
	pass := os.Getenv("MYSQL_PASS")
	dbname := getenv("MYSQL_DB", "rabc")
	return fmt.Sprintf("%s:%s@tcp(%s:%s)/%s?charset=utf8mb4&parseTime=True&loc=Local",
		user, pass, host, port, dbname)
}

func getenv(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}
