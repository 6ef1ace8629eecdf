// Package store implements the Rule Store: the durable document
// collection of rules backing crash recovery and the external
// rule-management surface. Grounded on the repository package's
// database/sql + lib/pq composition, generalized from one table per
// domain entity to a single watch_rules table holding every watch type.
package store

import (
	"context"
	"database/sql"
	"errors"
	"strconv"
	"strings"
	"time"

	_ "github.com/lib/pq"

	"github.com/svyatogor45/marketmonitor/internal/model"
	"github.com/svyatogor45/marketmonitor/pkg/jsonutil"
)

// Sentinel errors surfaced to callers, mirroring the repository
// package's ErrOrderNotFound / ErrBlacklistEntryExists pattern.
var (
	ErrRuleNotFound = errors.New("rule not found")
	ErrRuleExists   = errors.New("rule already exists")
)

// RuleStore is the Rule Store's sole implementation: a Postgres-backed
// watch_rules table. Indexes on user_id, watch_type, and active back the
// {user_id, watch_type, active} index set required by the persisted
// Rule aggregate.
type RuleStore struct {
	db *sql.DB
}

// Open dials Postgres using a DSN built by config.StoreConfig.DSN() and
// verifies connectivity with a ping.
func Open(dsn string, maxOpenConns, maxIdleConns int, connMaxLifetime time.Duration) (*RuleStore, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(maxOpenConns)
	db.SetMaxIdleConns(maxIdleConns)
	db.SetConnMaxLifetime(connMaxLifetime)

	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return &RuleStore{db: db}, nil
}

// NewRuleStore wraps an already-open *sql.DB, used by tests with sqlmock.
func NewRuleStore(db *sql.DB) *RuleStore {
	return &RuleStore{db: db}
}

func (s *RuleStore) Close() error {
	return s.db.Close()
}

// Save inserts a new rule document. Returns ErrRuleExists on a unique
// violation of rule_id.
func (s *RuleStore) Save(ctx context.Context, rule *model.Rule) error {
	target, err := jsonutil.Marshal(rule.Target)
	if err != nil {
		return err
	}
	targetData, err := jsonutil.Marshal(rule.TargetData)
	if err != nil {
		return err
	}
	condition, err := jsonutil.Marshal(rule.Condition)
	if err != nil {
		return err
	}
	metadata, err := jsonutil.Marshal(rule.Metadata)
	if err != nil {
		return err
	}

	if rule.CreatedAt.IsZero() {
		rule.CreatedAt = time.Now()
	}
	rule.LastUpdated = rule.CreatedAt
	if rule.Status == "" {
		rule.Status = model.StatusPending
	}

	query := `
		INSERT INTO watch_rules
			(rule_id, user_id, user_name, watch_type, target, target_data, condition,
			 notify_channel, notify_id, metadata, active, created_at, last_updated, status, last_error)
		VALUES
			($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)`

	_, err = s.db.ExecContext(ctx, query,
		rule.RuleID, rule.UserID, rule.UserName, rule.WatchType,
		target, targetData, condition,
		rule.NotifyChannel, rule.NotifyID, metadata,
		rule.Active, rule.CreatedAt, rule.LastUpdated, rule.Status, rule.LastError,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return ErrRuleExists
		}
		return err
	}
	return nil
}

// RulePatch carries the partial fields Update may change. Nil fields are
// left untouched.
type RulePatch struct {
	Active        *bool
	Status        *string
	LastError     *string
	NotifyChannel *string
	NotifyID      *string
	Condition     *model.Condition
}

// Update applies patch to the rule identified by ruleID. Returns
// (matched bool, err error); matched=false means no document had that
// rule_id.
func (s *RuleStore) Update(ctx context.Context, ruleID string, patch RulePatch) (bool, error) {
	sets := make([]string, 0, 6)
	args := make([]interface{}, 0, 6)
	n := 1

	if patch.Active != nil {
		sets = append(sets, argClause("active", &n))
		args = append(args, *patch.Active)
	}
	if patch.Status != nil {
		sets = append(sets, argClause("status", &n))
		args = append(args, *patch.Status)
	}
	if patch.LastError != nil {
		sets = append(sets, argClause("last_error", &n))
		args = append(args, *patch.LastError)
	}
	if patch.NotifyChannel != nil {
		sets = append(sets, argClause("notify_channel", &n))
		args = append(args, *patch.NotifyChannel)
	}
	if patch.NotifyID != nil {
		sets = append(sets, argClause("notify_id", &n))
		args = append(args, *patch.NotifyID)
	}
	if patch.Condition != nil {
		data, err := jsonutil.Marshal(*patch.Condition)
		if err != nil {
			return false, err
		}
		sets = append(sets, argClause("condition", &n))
		args = append(args, data)
	}
	if len(sets) == 0 {
		return true, nil
	}

	sets = append(sets, argClause("last_updated", &n))
	args = append(args, time.Now())
	args = append(args, ruleID)

	query := "UPDATE watch_rules SET " + strings.Join(sets, ", ") +
		" WHERE rule_id = $" + strconv.Itoa(n)

	res, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return false, err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return affected > 0, nil
}

// Deactivate sets active = false for ruleID. Equivalent to
// Update(ruleID, {active: false}).
func (s *RuleStore) Deactivate(ctx context.Context, ruleID string) (bool, error) {
	inactive := false
	return s.Update(ctx, ruleID, RulePatch{Active: &inactive})
}

// UpdateStatus sets status, last_updated, and optionally last_error.
func (s *RuleStore) UpdateStatus(ctx context.Context, ruleID, status string, ruleErr string) (bool, error) {
	patch := RulePatch{Status: &status}
	if ruleErr != "" {
		patch.LastError = &ruleErr
	}
	return s.Update(ctx, ruleID, patch)
}

// GetActive returns every active rule, optionally filtered to a single
// watch type. An empty watchType returns rules of every type — the
// unbounded cursor the Rule Processor drains on crash-recovery replay.
func (s *RuleStore) GetActive(ctx context.Context, watchType string) ([]*model.Rule, error) {
	query := `
		SELECT rule_id, user_id, user_name, watch_type, target, target_data, condition,
		       notify_channel, notify_id, metadata, active, created_at, last_updated, status, last_error
		FROM watch_rules
		WHERE active = true`
	args := []interface{}{}
	if watchType != "" {
		query += " AND watch_type = $1"
		args = append(args, watchType)
	}
	query += " ORDER BY created_at ASC"

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var rules []*model.Rule
	for rows.Next() {
		rule, err := scanRule(rows)
		if err != nil {
			return nil, err
		}
		rules = append(rules, rule)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return rules, nil
}

// GetByID returns a single rule by rule_id, or ErrRuleNotFound.
func (s *RuleStore) GetByID(ctx context.Context, ruleID string) (*model.Rule, error) {
	query := `
		SELECT rule_id, user_id, user_name, watch_type, target, target_data, condition,
		       notify_channel, notify_id, metadata, active, created_at, last_updated, status, last_error
		FROM watch_rules
		WHERE rule_id = $1`

	row := s.db.QueryRowContext(ctx, query, ruleID)
	rule, err := scanRule(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrRuleNotFound
		}
		return nil, err
	}
	return rule, nil
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanRule(row rowScanner) (*model.Rule, error) {
	var (
		rule                                model.Rule
		target, targetData, condition, meta []byte
	)
	err := row.Scan(
		&rule.RuleID, &rule.UserID, &rule.UserName, &rule.WatchType,
		&target, &targetData, &condition,
		&rule.NotifyChannel, &rule.NotifyID, &meta,
		&rule.Active, &rule.CreatedAt, &rule.LastUpdated, &rule.Status, &rule.LastError,
	)
	if err != nil {
		return nil, err
	}

	if err := jsonutil.Unmarshal(target, &rule.Target); err != nil {
		return nil, err
	}
	if len(targetData) > 0 {
		if err := jsonutil.Unmarshal(targetData, &rule.TargetData); err != nil {
			return nil, err
		}
	}
	if len(condition) > 0 {
		if err := jsonutil.Unmarshal(condition, &rule.Condition); err != nil {
			return nil, err
		}
	}
	if len(meta) > 0 {
		if err := jsonutil.Unmarshal(meta, &rule.Metadata); err != nil {
			return nil, err
		}
	}
	return &rule, nil
}

func argClause(column string, n *int) string {
	clause := column + " = $" + strconv.Itoa(*n)
	*n++
	return clause
}

// isUniqueViolation mirrors the repository package's string-matching
// check for Postgres' duplicate key error (SQLSTATE 23505).
func isUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	s := err.Error()
	return strings.Contains(s, "duplicate key") || strings.Contains(s, "23505")
}
