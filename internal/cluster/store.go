// Package cluster implements ClusterMonitor: hub selection, SQL membership
// refresh against a Clustrix-dialect backend, concurrent HTTP health
// checks, and a small persisted node store.
package cluster

import (
	"database/sql"
	"fmt"
	"strings"

	_ "github.com/mattn/go-sqlite3"
)

// storeSchemaVersion is baked into the store's filename (spec §6: "Schema
// version is baked into the filename") so a future incompatible schema
// change starts from a fresh file instead of migrating one in place.
const storeSchemaVersion = 1

// StorePath derives the versioned on-disk filename for base, e.g.
// "nodes.db" -> "nodes.v1.db". Callers should pass the result to
// OpenStore rather than the bare base path.
func StorePath(base string) string {
	ext := ""
	name := base
	if i := strings.LastIndex(base, "."); i > strings.LastIndexByte(base, '/') {
		ext = base[i:]
		name = base[:i]
	}
	return fmt.Sprintf("%s.v%d%s", name, storeSchemaVersion, ext)
}

// Store is the local persisted-node KV database: bootstrap_nodes and
// dynamic_nodes, schema-versioned into the filename by StorePath.
type Store struct {
	db *sql.DB
}

func OpenStore(path string) (*Store, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("cluster: open node store: %w", err)
	}
	s := &Store{db: db}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

func (s *Store) migrate() error {
	_, err := s.db.Exec(`
		CREATE TABLE IF NOT EXISTS bootstrap_nodes (
			ip TEXT NOT NULL,
			mysql_port INTEGER NOT NULL
		);
		CREATE TABLE IF NOT EXISTS dynamic_nodes (
			id INTEGER PRIMARY KEY,
			ip TEXT NOT NULL,
			mysql_port INTEGER NOT NULL,
			health_port INTEGER NOT NULL
		);
	`)
	if err != nil {
		return fmt.Errorf("cluster: migrate node store: %w", err)
	}
	return nil
}

func (s *Store) Close() error { return s.db.Close() }

type BootstrapNode struct {
	IP        string
	MySQLPort int
}

type DynamicNode struct {
	ID         int64
	IP         string
	MySQLPort  int
	HealthPort int
}

func (s *Store) BootstrapNodes() ([]BootstrapNode, error) {
	rows, err := s.db.Query(`SELECT ip, mysql_port FROM bootstrap_nodes`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []BootstrapNode
	for rows.Next() {
		var n BootstrapNode
		if err := rows.Scan(&n.IP, &n.MySQLPort); err != nil {
			return nil, err
		}
		out = append(out, n)
	}
	return out, rows.Err()
}

func (s *Store) DynamicNodes() ([]DynamicNode, error) {
	rows, err := s.db.Query(`SELECT id, ip, mysql_port, health_port FROM dynamic_nodes`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []DynamicNode
	for rows.Next() {
		var n DynamicNode
		if err := rows.Scan(&n.ID, &n.IP, &n.MySQLPort, &n.HealthPort); err != nil {
			return nil, err
		}
		out = append(out, n)
	}
	return out, rows.Err()
}

// ReplaceBootstrapNodes wipes and repopulates bootstrap_nodes, used when
// the configured bootstrap set no longer matches the persisted one (the
// previous cluster is considered unrelated).
func (s *Store) ReplaceBootstrapNodes(nodes []BootstrapNode) error {
	tx, err := s.db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()
	if _, err := tx.Exec(`DELETE FROM bootstrap_nodes`); err != nil {
		return err
	}
	for _, n := range nodes {
		if _, err := tx.Exec(`INSERT INTO bootstrap_nodes (ip, mysql_port) VALUES (?, ?)`, n.IP, n.MySQLPort); err != nil {
			return err
		}
	}
	return tx.Commit()
}

// WipeDynamicNodes clears dynamic_nodes, companion to ReplaceBootstrapNodes
// when the bootstrap set has changed.
func (s *Store) WipeDynamicNodes() error {
	_, err := s.db.Exec(`DELETE FROM dynamic_nodes`)
	return err
}

// UpsertDynamicNode inserts or updates one node's address, keyed by id.
func (s *Store) UpsertDynamicNode(n DynamicNode) error {
	_, err := s.db.Exec(`
		INSERT INTO dynamic_nodes (id, ip, mysql_port, health_port) VALUES (?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET ip=excluded.ip, mysql_port=excluded.mysql_port, health_port=excluded.health_port
	`, n.ID, n.IP, n.MySQLPort, n.HealthPort)
	return err
}

// DeleteDynamicNode removes a node no longer present in membership.
func (s *Store) DeleteDynamicNode(id int64) error {
	_, err := s.db.Exec(`DELETE FROM dynamic_nodes WHERE id = ?`, id)
	return err
}
