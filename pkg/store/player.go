package store

import (
	"bytes"
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/Ts-yf/astrbot-plugin-srwolrd/pkg/dbpool"
	"github.com/Ts-yf/astrbot-plugin-srwolrd/pkg/dialect"
	"github.com/Ts-yf/astrbot-plugin-srwolrd/pkg/metrics"

	"go.uber.org/zap"
)

var playerColumns = []string{
	"user_id", "player_id", "name", "gold", "diamond", "city_level", "total_income",
	"tutorial_step", "ticket_normal", "ticket_gold", "ticket_rainbow", "last_checkin_date",
	"consecutive_checkins", "memory_tickets", "current_event", "event_expire_time",
}

type childTable struct {
	name    string
	columns []string
}

// Child tables in the order they are cleared and refilled on save.
var (
	boothsTable      = childTable{"player_booths", []string{"user_id", "booth_name", "unlocked", "assistant_name", "assistant_level", "assistant_star", "last_collect"}}
	assistantsTable  = childTable{"player_assistants", []string{"user_id", "assistant_name", "level", "star"}}
	fragmentsTable   = childTable{"player_fragments", []string{"user_id", "assistant_name", "count"}}
	memoryPartsTable = childTable{"player_memory_parts", []string{"user_id", "card_part_key", "count"}}
	memoryCardsTable = childTable{"player_memory_cards", []string{"user_id", "card_name", "count"}}

	childTables = []childTable{boothsTable, assistantsTable, fragmentsTable, memoryPartsTable, memoryCardsTable}
)

// Load reads the aggregate for userID. It returns nil and no error when the
// player does not exist. The six reads are not run in one transaction.
func (s *Store) Load(ctx context.Context, userID string) (*Player, error) {
	var player *Player
	err := dbpool.WithConn(ctx, s.pool, func(conn *dbpool.PooledConn) error {
		p, err := s.loadPlayer(ctx, conn, userID)
		if err != nil || p == nil {
			return err
		}
		if p.Booths, err = s.loadBooths(ctx, conn, userID); err != nil {
			return err
		}
		if p.Assistants, err = s.loadAssistants(ctx, conn, userID); err != nil {
			return err
		}
		if p.Fragments, err = s.loadCounts(ctx, conn, fragmentsTable, userID); err != nil {
			return err
		}
		if p.MemoryParts, err = s.loadCounts(ctx, conn, memoryPartsTable, userID); err != nil {
			return err
		}
		if p.MemoryCards, err = s.loadCounts(ctx, conn, memoryCardsTable, userID); err != nil {
			return err
		}
		player = p
		return nil
	})
	if err != nil {
		s.logger.Error("failed to load player", err, zap.String("user_id", userID))
		return nil, err
	}
	return player, nil
}

func (s *Store) loadPlayer(ctx context.Context, conn dbpool.Querier, userID string) (*Player, error) {
	const query = `SELECT player_id, name, gold, diamond, city_level, total_income, tutorial_step,
		ticket_normal, ticket_gold, ticket_rainbow, last_checkin_date, consecutive_checkins,
		memory_tickets, current_event, event_expire_time
		FROM players WHERE user_id = ?`

	var (
		p       Player
		checkin sql.NullString
		event   []byte
	)
	err := s.queryRow(ctx, conn, query, userID).Scan(
		&p.PlayerID, &p.Name, &p.Gold, &p.Diamond, &p.CityLevel, &p.TotalIncome, &p.TutorialStep,
		&p.Tickets.Normal, &p.Tickets.Gold, &p.Tickets.Rainbow, &checkin, &p.ConsecutiveCheckins,
		&p.MemoryTickets, &event, &p.EventExpireTime,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load players row: %w", err)
	}
	p.LastCheckinDate = checkin.String
	if len(event) > 0 {
		p.CurrentEvent = append([]byte(nil), event...)
	}
	return &p, nil
}

func (s *Store) loadBooths(ctx context.Context, conn dbpool.Querier, userID string) (map[string]Booth, error) {
	rows, err := s.query(ctx, conn, `SELECT booth_name, unlocked, assistant_name, assistant_level, assistant_star, last_collect
		FROM player_booths WHERE user_id = ?`, userID)
	if err != nil {
		return nil, fmt.Errorf("load booths: %w", err)
	}
	defer rows.Close()

	booths := map[string]Booth{}
	for rows.Next() {
		var (
			name        string
			b           Booth
			assistant   sql.NullString
			level, star sql.NullInt64
		)
		if err := rows.Scan(&name, &b.Unlocked, &assistant, &level, &star, &b.LastCollect); err != nil {
			return nil, fmt.Errorf("scan booth: %w", err)
		}
		if assistant.Valid {
			b.Assistant = &Assistant{Name: assistant.String, Level: int(level.Int64), Star: int(star.Int64)}
		}
		booths[name] = b
	}
	return booths, rows.Err()
}

func (s *Store) loadAssistants(ctx context.Context, conn dbpool.Querier, userID string) ([]Assistant, error) {
	rows, err := s.query(ctx, conn, `SELECT assistant_name, level, star
		FROM player_assistants WHERE user_id = ? ORDER BY id`, userID)
	if err != nil {
		return nil, fmt.Errorf("load assistants: %w", err)
	}
	defer rows.Close()

	assistants := []Assistant{}
	for rows.Next() {
		var a Assistant
		if err := rows.Scan(&a.Name, &a.Level, &a.Star); err != nil {
			return nil, fmt.Errorf("scan assistant: %w", err)
		}
		assistants = append(assistants, a)
	}
	return assistants, rows.Err()
}

// loadCounts reads a name -> count child table, skipping non-positive counts.
func (s *Store) loadCounts(ctx context.Context, conn dbpool.Querier, t childTable, userID string) (map[string]int, error) {
	query := fmt.Sprintf("SELECT %s, count FROM %s WHERE user_id = ? AND count > 0", t.columns[1], t.name)
	rows, err := s.query(ctx, conn, query, userID)
	if err != nil {
		return nil, fmt.Errorf("load %s: %w", t.name, err)
	}
	defer rows.Close()

	counts := map[string]int{}
	for rows.Next() {
		var (
			key   string
			count int
		)
		if err := rows.Scan(&key, &count); err != nil {
			return nil, fmt.Errorf("scan %s: %w", t.name, err)
		}
		counts[key] = count
	}
	return counts, rows.Err()
}

// Save replaces the stored aggregate for userID with p in one transaction:
// the players row is upserted, then all five child tables are cleared and
// refilled from p. Empty collections clear their table. When p has no
// PlayerID the next free one is allocated and written back to p, but only
// once the transaction has committed.
//
// Pool errors are returned as is. Anything that fails after the connection
// was acquired is rolled back and returned as a *SaveError.
func (s *Store) Save(ctx context.Context, userID string, p *Player) error {
	start := time.Now()

	pc, err := s.pool.Acquire(ctx)
	if err != nil {
		return err
	}
	defer s.pool.Release(pc)
	defer s.restoreSession(ctx, pc, userID)

	playerID, err := s.saveTx(ctx, pc, userID, p)
	elapsed := time.Since(start)
	metrics.StoreSaveLatency.Observe(elapsed.Seconds())

	if err != nil {
		saveErr := &SaveError{
			UserID:      userID,
			Elapsed:     elapsed,
			LockTimeout: s.dialect.IsLockTimeout(err),
			Err:         err,
		}
		kind := "error"
		if saveErr.LockTimeout {
			kind = "lock_timeout"
		}
		metrics.StoreSaveFailuresTotal.WithLabelValues(kind).Inc()
		s.logger.Error("failed to save player", err,
			zap.String("user_id", userID),
			zap.Duration("elapsed", elapsed),
			zap.Bool("lock_timeout", saveErr.LockTimeout),
		)
		return saveErr
	}

	p.PlayerID = playerID
	if elapsed > s.slowSave {
		metrics.StoreSlowSavesTotal.Inc()
		s.logger.Warn("slow player save",
			zap.String("user_id", userID),
			zap.Duration("elapsed", elapsed),
			zap.Duration("threshold", s.slowSave),
		)
	}
	return nil
}

func (s *Store) saveTx(ctx context.Context, conn dbpool.Conn, userID string, p *Player) (int64, error) {
	for _, stmt := range s.dialect.SessionSetup() {
		if _, err := conn.ExecContext(ctx, stmt); err != nil {
			return 0, fmt.Errorf("session setup: %w", err)
		}
	}

	if err := conn.Begin(ctx); err != nil {
		return 0, err
	}

	playerID, err := s.writeAggregate(ctx, conn, userID, p)
	if err != nil {
		if rbErr := conn.Rollback(); rbErr != nil {
			s.logger.Warn("rollback failed", zap.String("user_id", userID), zap.Error(rbErr))
		}
		return 0, err
	}

	if err := conn.Commit(); err != nil {
		return 0, fmt.Errorf("commit: %w", err)
	}
	return playerID, nil
}

func (s *Store) writeAggregate(ctx context.Context, conn dbpool.Conn, userID string, p *Player) (int64, error) {
	playerID := p.PlayerID
	if playerID == 0 {
		id, err := s.nextPlayerID(ctx, conn)
		if err != nil {
			return 0, err
		}
		playerID = id
	}

	upsert := s.dialect.Upsert("players", "user_id", playerColumns)
	if _, err := s.exec(ctx, conn, upsert,
		userID, playerID, p.Name, p.Gold, p.Diamond, p.CityLevel, p.TotalIncome,
		p.TutorialStep, p.Tickets.Normal, p.Tickets.Gold, p.Tickets.Rainbow, nullIfEmpty(p.LastCheckinDate),
		p.ConsecutiveCheckins, p.MemoryTickets, eventValue(p.CurrentEvent), p.EventExpireTime,
	); err != nil {
		return 0, fmt.Errorf("upsert players: %w", err)
	}
	if err := s.checkOwner(ctx, conn, userID, playerID); err != nil {
		return 0, err
	}

	for _, t := range childTables {
		if _, err := s.exec(ctx, conn, "DELETE FROM "+t.name+" WHERE user_id = ?", userID); err != nil {
			return 0, fmt.Errorf("clear %s: %w", t.name, err)
		}
	}

	inserts := []struct {
		table childTable
		rows  [][]any
	}{
		{boothsTable, boothRows(userID, p.Booths)},
		{assistantsTable, assistantRows(userID, p.Assistants)},
		{fragmentsTable, countRows(userID, p.Fragments)},
		{memoryPartsTable, countRows(userID, p.MemoryParts)},
		{memoryCardsTable, countRows(userID, p.MemoryCards)},
	}
	for _, ins := range inserts {
		if err := s.insertRows(ctx, conn, ins.table, ins.rows); err != nil {
			return 0, err
		}
	}
	return playerID, nil
}

// checkOwner confirms the players row of userID now carries playerID. An
// upsert that collided with another user's player_id can leave it unwritten
// without reporting an error.
func (s *Store) checkOwner(ctx context.Context, conn dbpool.Querier, userID string, playerID int64) error {
	var stored int64
	err := s.queryRow(ctx, conn, "SELECT player_id FROM players WHERE user_id = ?", userID).Scan(&stored)
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("%w: %d", ErrPlayerIDTaken, playerID)
	}
	if err != nil {
		return fmt.Errorf("verify players row: %w", err)
	}
	if stored != playerID {
		return fmt.Errorf("%w: %d", ErrPlayerIDTaken, playerID)
	}
	return nil
}

// insertRows writes rows with a single multi-row INSERT.
func (s *Store) insertRows(ctx context.Context, conn dbpool.Querier, t childTable, rows [][]any) error {
	if len(rows) == 0 {
		return nil
	}
	tuple := "(" + dialect.Placeholders(len(t.columns)) + ")"
	tuples := make([]string, len(rows))
	args := make([]any, 0, len(rows)*len(t.columns))
	for i, r := range rows {
		tuples[i] = tuple
		args = append(args, r...)
	}
	query := fmt.Sprintf("INSERT INTO %s (%s) VALUES %s", t.name, strings.Join(t.columns, ", "), strings.Join(tuples, ", "))
	if _, err := s.exec(ctx, conn, query, args...); err != nil {
		return fmt.Errorf("insert %s: %w", t.name, err)
	}
	return nil
}

func (s *Store) restoreSession(ctx context.Context, conn dbpool.Conn, userID string) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()
	for _, stmt := range s.dialect.SessionRestore() {
		if _, err := conn.ExecContext(ctx, stmt); err != nil {
			s.logger.Warn("failed to restore session settings",
				zap.String("user_id", userID), zap.String("statement", stmt), zap.Error(err))
			return
		}
	}
}

func boothRows(userID string, booths map[string]Booth) [][]any {
	rows := make([][]any, 0, len(booths))
	for _, name := range sortedKeys(booths) {
		b := booths[name]
		var assistant any
		level, star := 1, 1
		if b.Assistant != nil {
			assistant = b.Assistant.Name
			level, star = b.Assistant.Level, b.Assistant.Star
		}
		rows = append(rows, []any{userID, name, b.Unlocked, assistant, level, star, b.LastCollect})
	}
	return rows
}

func assistantRows(userID string, assistants []Assistant) [][]any {
	rows := make([][]any, 0, len(assistants))
	for _, a := range assistants {
		rows = append(rows, []any{userID, a.Name, a.Level, a.Star})
	}
	return rows
}

// countRows drops entries whose count is zero or negative.
func countRows(userID string, counts map[string]int) [][]any {
	rows := make([][]any, 0, len(counts))
	for _, key := range sortedKeys(counts) {
		if counts[key] <= 0 {
			continue
		}
		rows = append(rows, []any{userID, key, counts[key]})
	}
	return rows
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// eventValue stores an absent or JSON null event as SQL NULL. Text rather
// than bytes, since MySQL rejects binary strings for JSON columns.
func eventValue(raw []byte) any {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return nil
	}
	return string(trimmed)
}
