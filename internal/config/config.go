// Package config parses this node's process configuration, grounded
// on jdreaver-postgres-experiments/pgdaemon/config.go's flag+struct
// pattern — no configuration-file library appears anywhere in the
// retrieved corpus, so flag.* with defaults is the corpus-idiomatic
// choice for a daemon like this one.
package config

import (
	"flag"
	"fmt"
	"os"
	"strings"
	"time"
)

// Peer is one other cluster member as given on the command line:
// "id=host:port".
type Peer struct {
	Id       string
	Endpoint string
}

type Config struct {
	Id string

	Peers []Peer

	MinPing time.Duration
	MaxPing time.Duration

	ListenAddress string
	DataDir       string

	SweepCeiling time.Duration
}

// Parse reads process flags into a Config, applying the same
// hostname-default and required-field validation style as the
// teacher's parseFlags.
func Parse(args []string) (Config, error) {
	fs := flag.NewFlagSet("agencyd", flag.ContinueOnError)

	id := fs.String("id", "", "this node's id in the cluster (defaults to hostname)")
	peers := fs.String("peers", "", "CSV of peer \"id=host:port\" pairs")
	minPing := fs.Duration("min-ping", 150*time.Millisecond, "minimum follower election timeout")
	maxPing := fs.Duration("max-ping", 300*time.Millisecond, "maximum follower election timeout")
	listen := fs.String("listen", ":8529", "address to listen on")
	dataDir := fs.String("data-dir", "./agency-data", "directory for durable agent state")
	sweepCeiling := fs.Duration("sweep-ceiling", 100*time.Millisecond, "sleep ceiling for the TTL sweeper when no entries are pending; stored in Config.SweepCeiling, which agencyd does not pass to the sweeper (it always uses store.DefaultSweepCeiling)")

	fs.Usage = func() {
		fmt.Fprintln(os.Stderr, "Usage: agencyd [options]")
		fs.PrintDefaults()
	}

	if err := fs.Parse(args); err != nil {
		return Config{}, err
	}

	if *id == "" {
		hostname, err := os.Hostname()
		if err != nil {
			return Config{}, fmt.Errorf("config: no -id given and failed to get hostname: %w", err)
		}
		*id = hostname
	}

	peerList, err := parsePeers(*peers)
	if err != nil {
		return Config{}, err
	}

	if *minPing <= 0 || *maxPing <= *minPing {
		return Config{}, fmt.Errorf("config: require 0 < min-ping < max-ping, got min=%s max=%s", *minPing, *maxPing)
	}

	return Config{
		Id:            *id,
		Peers:         peerList,
		MinPing:       *minPing,
		MaxPing:       *maxPing,
		ListenAddress: *listen,
		DataDir:       *dataDir,
		SweepCeiling:  *sweepCeiling,
	}, nil
}

func parsePeers(csv string) ([]Peer, error) {
	if strings.TrimSpace(csv) == "" {
		return nil, nil
	}

	var peers []Peer
	for _, entry := range strings.Split(csv, ",") {
		entry = strings.TrimSpace(entry)
		if entry == "" {
			continue
		}
		parts := strings.SplitN(entry, "=", 2)
		if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
			return nil, fmt.Errorf("config: malformed peer entry %q, want \"id=host:port\"", entry)
		}
		peers = append(peers, Peer{Id: parts[0], Endpoint: parts[1]})
	}
	return peers, nil
}
