package store

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/roach88/stratagem/internal/ir"
)

// TxStatus is the outcome of a journaled transaction.
type TxStatus string

const (
	TxOK     TxStatus = "ok"
	TxFailed TxStatus = "failed"
)

// TxRecord is one submitted transaction.
type TxRecord struct {
	Seq           int64           `json:"seq"`
	ID            string          `json:"id"`
	Sender        string          `json:"sender"`
	Contract      string          `json:"contract"`
	Entry         string          `json:"entry"`
	Msg           json.RawMessage `json:"msg"`
	Funds         ir.Coins        `json:"funds"`
	Status        TxStatus        `json:"status"`
	Error         string          `json:"error,omitempty"`
	Height        uint64          `json:"height"`
	Time          time.Time       `json:"time"`
	EngineVersion string          `json:"engine_version"`
	SchemaVersion string          `json:"schema_version"`
}

// MessageRecord is one message dispatched within a transaction. Seq is
// the dispatch position; ID is the content address of the message.
type MessageRecord struct {
	TxID    string          `json:"tx_id"`
	Seq     int             `json:"seq"`
	ID      string          `json:"id"`
	Depth   int             `json:"depth"`
	Sender  string          `json:"sender"`
	Target  string          `json:"target"`
	Kind    string          `json:"kind"`
	Payload json.RawMessage `json:"payload"`
	Events  []ir.Event      `json:"events,omitempty"`
}

// InsertTransaction journals a transaction. Seq is assigned by the store.
func (t *Tx) InsertTransaction(ctx context.Context, rec TxRecord) error {
	msg, err := canonicalRaw(rec.Msg)
	if err != nil {
		return fmt.Errorf("insert transaction %s: msg: %w", rec.ID, err)
	}
	funds := rec.Funds.Normalize()
	fundsJSON, err := marshalColumn(funds)
	if err != nil {
		return fmt.Errorf("insert transaction %s: funds: %w", rec.ID, err)
	}

	if _, err := t.exec(ctx, `
		INSERT INTO transactions
		(id, sender, contract, entry, msg, funds, status, error, height, time, engine_version, schema_version)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		rec.ID,
		rec.Sender,
		rec.Contract,
		rec.Entry,
		msg,
		fundsJSON,
		string(rec.Status),
		rec.Error,
		rec.Height,
		rec.Time.Unix(),
		rec.EngineVersion,
		rec.SchemaVersion,
	); err != nil {
		return fmt.Errorf("insert transaction %s: %w", rec.ID, err)
	}
	return nil
}

// InsertMessage journals a dispatched message. The transaction row must
// already exist.
func (t *Tx) InsertMessage(ctx context.Context, m MessageRecord) error {
	payload, err := canonicalRaw(m.Payload)
	if err != nil {
		return fmt.Errorf("insert message %s/%d: payload: %w", m.TxID, m.Seq, err)
	}
	events := m.Events
	if events == nil {
		events = []ir.Event{}
	}
	eventsJSON, err := marshalColumn(events)
	if err != nil {
		return fmt.Errorf("insert message %s/%d: events: %w", m.TxID, m.Seq, err)
	}

	if _, err := t.exec(ctx, `
		INSERT INTO messages (tx_id, seq, id, depth, sender, target, kind, payload, events)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		m.TxID,
		m.Seq,
		m.ID,
		m.Depth,
		m.Sender,
		m.Target,
		m.Kind,
		payload,
		eventsJSON,
	); err != nil {
		return fmt.Errorf("insert message %s/%d: %w", m.TxID, m.Seq, err)
	}
	return nil
}

// Transaction returns a journaled transaction and its messages in
// dispatch order, or ErrNotFound.
func (t *Tx) Transaction(ctx context.Context, id string) (TxRecord, []MessageRecord, error) {
	row := t.queryRow(ctx, `
		SELECT seq, id, sender, contract, entry, msg, funds, status, error, height, time, engine_version, schema_version
		FROM transactions WHERE id = ?
	`, id)
	rec, err := scanTxRecord(row)
	if errors.Is(err, sql.ErrNoRows) {
		return TxRecord{}, nil, fmt.Errorf("transaction %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return TxRecord{}, nil, fmt.Errorf("transaction %s: %w", id, err)
	}

	msgs, err := t.messages(ctx, id)
	if err != nil {
		return TxRecord{}, nil, err
	}
	return rec, msgs, nil
}

// Transactions returns the most recent limit transactions, oldest first.
func (t *Tx) Transactions(ctx context.Context, limit int) ([]TxRecord, error) {
	rows, err := t.query(ctx, `
		SELECT seq, id, sender, contract, entry, msg, funds, status, error, height, time, engine_version, schema_version
		FROM (SELECT * FROM transactions ORDER BY seq DESC LIMIT ?)
		ORDER BY seq ASC
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("query transactions: %w", err)
	}
	defer rows.Close()

	records := []TxRecord{}
	for rows.Next() {
		rec, err := scanTxRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("scan transaction: %w", err)
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate transactions: %w", err)
	}
	return records, nil
}

func (t *Tx) messages(ctx context.Context, txID string) ([]MessageRecord, error) {
	rows, err := t.query(ctx, `
		SELECT tx_id, seq, id, depth, sender, target, kind, payload, events
		FROM messages WHERE tx_id = ?
		ORDER BY seq ASC
	`, txID)
	if err != nil {
		return nil, fmt.Errorf("query messages: %w", err)
	}
	defer rows.Close()

	msgs := []MessageRecord{}
	for rows.Next() {
		var (
			m       MessageRecord
			payload string
			events  string
		)
		if err := rows.Scan(&m.TxID, &m.Seq, &m.ID, &m.Depth, &m.Sender, &m.Target, &m.Kind, &payload, &events); err != nil {
			return nil, fmt.Errorf("scan message: %w", err)
		}
		m.Payload = json.RawMessage(payload)
		if err := unmarshalColumn(events, &m.Events); err != nil {
			return nil, fmt.Errorf("decode events: %w", err)
		}
		msgs = append(msgs, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate messages: %w", err)
	}
	return msgs, nil
}

func scanTxRecord(row rowScanner) (TxRecord, error) {
	var rec TxRecord
	var msg, funds, status string
	var unix int64
	if err := row.Scan(
		&rec.Seq,
		&rec.ID,
		&rec.Sender,
		&rec.Contract,
		&rec.Entry,
		&msg,
		&funds,
		&status,
		&rec.Error,
		&rec.Height,
		&unix,
		&rec.EngineVersion,
		&rec.SchemaVersion,
	); err != nil {
		return TxRecord{}, err
	}
	rec.Msg = json.RawMessage(msg)
	rec.Status = TxStatus(status)
	rec.Time = time.Unix(unix, 0).UTC()
	if err := unmarshalColumn(funds, &rec.Funds); err != nil {
		return TxRecord{}, fmt.Errorf("decode funds: %w", err)
	}
	return rec, nil
}

// canonicalRaw re-encodes raw JSON canonically. Empty input is stored as
// an empty object.
func canonicalRaw(raw json.RawMessage) (string, error) {
	if len(raw) == 0 {
		return "{}", nil
	}
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var v any
	if err := dec.Decode(&v); err != nil {
		return "", err
	}
	return marshalColumn(v)
}
