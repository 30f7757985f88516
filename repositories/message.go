package repositories

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/carladovalle/bate-papo-uol-api/contract"
	"github.com/carladovalle/bate-papo-uol-api/domain"
	apperrors "github.com/carladovalle/bate-papo-uol-api/errors"

	"github.com/blugelabs/bluge"
	"github.com/blugelabs/bluge/search"
	"github.com/dgraph-io/badger/v4"
	"github.com/google/uuid"
	"github.com/samber/lo"
)

const (
	messagePrefix   = "msg:"
	messageIndexKey = "idx:msg:%s"
	sequenceKey     = "seq:messages"
)

// MessageRepository persists messages in BadgerDB and mirrors their text
// into a Bluge index for full-text search.
//
// The primary key is "msg:{seq_padded}:{uuid}":
//  1. The Badger sequence gives collision-free, monotonically increasing
//     positions, so lexicographic key order is exactly append order.
//  2. The UUID is the public message id; "idx:msg:{uuid}" resolves it back
//     to the primary key for edits and deletions.
type MessageRepository struct {
	db    *badger.DB
	index *bluge.Writer
	log   *slog.Logger
	clock contract.Clock
	seq   *badger.Sequence
}

func NewMessageRepository(db *badger.DB, index *bluge.Writer, log *slog.Logger, clock contract.Clock) (*MessageRepository, error) {
	seq, err := db.GetSequence([]byte(sequenceKey), 128)
	if err != nil {
		return nil, fmt.Errorf("message sequence: %w", err)
	}
	return &MessageRepository{db: db, index: index, log: log, clock: clock, seq: seq}, nil
}

// Close releases the unused tail of the Badger sequence.
func (r *MessageRepository) Close() error {
	return r.seq.Release()
}

type diskMessage struct {
	ID   string    `json:"id"`
	From string    `json:"from"`
	To   string    `json:"to"`
	Text string    `json:"text"`
	Kind string    `json:"kind"`
	At   time.Time `json:"at"`
}

// Append assigns an id and capture time, then stores the message. The
// Badger transaction is atomic: either the message and its id index are
// both visible, or neither is. A canceled context appends nothing.
func (r *MessageRepository) Append(ctx context.Context, input domain.MessageInput) (domain.Message, error) {
	if err := ctx.Err(); err != nil {
		return domain.Message{}, err
	}

	msg := domain.Message{
		ID:   uuid.New(),
		From: input.From,
		To:   input.To,
		Text: input.Text,
		Kind: input.Kind,
		At:   r.clock.Now(),
	}

	pos, err := r.seq.Next()
	if err != nil {
		return domain.Message{}, fmt.Errorf("next message position: %w", err)
	}
	key := primaryKey(pos, msg.ID)

	value, err := json.Marshal(fromMessage(msg))
	if err != nil {
		return domain.Message{}, err
	}

	err = r.db.Update(func(txn *badger.Txn) error {
		if err := txn.Set(key, value); err != nil {
			return err
		}
		return txn.Set(indexKey(msg.ID), key)
	})
	if err != nil {
		return domain.Message{}, err
	}

	// The search index is secondary to the log itself. An indexing failure
	// makes the message unsearchable, not lost.
	if err := r.indexText(msg.ID, msg.Text); err != nil {
		r.log.Error("Failed to index message text", "id", msg.ID, "err", err)
	}
	return msg, nil
}

// ListVisibleTo returns, in append order, every message the viewer should
// see: broadcasts, messages addressed to them, and their own.
func (r *MessageRepository) ListVisibleTo(ctx context.Context, viewer string) ([]domain.Message, error) {
	all, err := r.listAll(ctx)
	if err != nil {
		return nil, err
	}
	return lo.Filter(all, func(m domain.Message, _ int) bool {
		return m.VisibleTo(viewer)
	}), nil
}

// GetByID resolves the id index and loads a single message.
func (r *MessageRepository) GetByID(ctx context.Context, id uuid.UUID) (domain.Message, error) {
	if err := ctx.Err(); err != nil {
		return domain.Message{}, err
	}

	var msg domain.Message
	err := r.db.View(func(txn *badger.Txn) error {
		dm, _, err := getByIndex(txn, id)
		if err != nil {
			return err
		}
		msg, err = toMessage(dm)
		return err
	})
	return msg, err
}

// UpdateByID replaces the mutable fields (to, text, kind) of the message
// with the given id. Sender, id and capture time never change.
func (r *MessageRepository) UpdateByID(ctx context.Context, id uuid.UUID, patch domain.MessagePatch) (domain.Message, error) {
	if err := ctx.Err(); err != nil {
		return domain.Message{}, err
	}

	var msg domain.Message
	err := r.db.Update(func(txn *badger.Txn) error {
		dm, key, err := getByIndex(txn, id)
		if err != nil {
			return err
		}
		dm.To = patch.To
		dm.Text = patch.Text
		dm.Kind = string(patch.Kind)

		value, err := json.Marshal(dm)
		if err != nil {
			return err
		}
		if err := txn.Set(key, value); err != nil {
			return err
		}
		msg, err = toMessage(dm)
		return err
	})
	if err != nil {
		return domain.Message{}, err
	}

	if err := r.indexText(id, msg.Text); err != nil {
		r.log.Error("Failed to reindex message text", "id", id, "err", err)
	}
	return msg, nil
}

// DeleteByID removes the message and its id index.
func (r *MessageRepository) DeleteByID(ctx context.Context, id uuid.UUID) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	err := r.db.Update(func(txn *badger.Txn) error {
		_, key, err := getByIndex(txn, id)
		if err != nil {
			return err
		}
		if err := txn.Delete(key); err != nil {
			return err
		}
		return txn.Delete(indexKey(id))
	})
	if err != nil {
		return err
	}

	if err := r.index.Delete(bluge.Identifier(id.String())); err != nil {
		r.log.Error("Failed to drop message from index", "id", id, "err", err)
	}
	return nil
}

// Search runs a match query over message bodies and loads the hits from
// Badger, in append order. Hits whose message was deleted since indexing
// are skipped.
func (r *MessageRepository) Search(ctx context.Context, query string, limit int) ([]domain.Message, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	reader, err := r.index.Reader()
	if err != nil {
		return nil, fmt.Errorf("open index reader: %w", err)
	}
	defer reader.Close()

	match := bluge.NewMatchQuery(query).SetField("text")
	it, err := reader.Search(ctx, bluge.NewTopNSearch(limit, match))
	if err != nil {
		return nil, err
	}
	ids, err := collectHitIDs(it)
	if err != nil {
		return nil, err
	}

	type searchHit struct {
		key []byte
		msg domain.Message
	}
	var hits []searchHit
	err = r.db.View(func(txn *badger.Txn) error {
		for _, id := range ids {
			dm, key, err := getByIndex(txn, id)
			if errors.Is(err, apperrors.ErrMessageNotFound) {
				continue
			}
			if err != nil {
				return err
			}
			msg, err := toMessage(dm)
			if err != nil {
				return err
			}
			hits = append(hits, searchHit{key: key, msg: msg})
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	// Primary keys embed the sequence position, so key order is append
	// order even when capture times collide.
	sort.Slice(hits, func(i, j int) bool {
		return bytes.Compare(hits[i].key, hits[j].key) < 0
	})
	return lo.Map(hits, func(h searchHit, _ int) domain.Message { return h.msg }), nil
}

// hitIterator is the slice of the Bluge result iterator Search consumes.
type hitIterator interface {
	Next() (*search.DocumentMatch, error)
}

// collectHitIDs drains the iterator and parses the stored document id out
// of every hit. A terminal iterator error fails the whole search; a
// truncated hit list must never read as a complete one.
func collectHitIDs(it hitIterator) ([]uuid.UUID, error) {
	var ids []uuid.UUID
	hit, err := it.Next()
	for err == nil && hit != nil {
		visitErr := hit.VisitStoredFields(func(field string, value []byte) bool {
			if field == "_id" {
				if id, parseErr := uuid.Parse(string(value)); parseErr == nil {
					ids = append(ids, id)
				}
			}
			return true
		})
		if visitErr != nil {
			return nil, visitErr
		}
		hit, err = it.Next()
	}
	if err != nil {
		return nil, err
	}
	return ids, nil
}

func (r *MessageRepository) listAll(ctx context.Context) ([]domain.Message, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var messages []domain.Message
	err := r.db.View(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()

		prefix := []byte(messagePrefix)
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			err := it.Item().Value(func(value []byte) error {
				var dm diskMessage
				if err := json.Unmarshal(value, &dm); err != nil {
					return err
				}
				msg, err := toMessage(dm)
				if err != nil {
					return err
				}
				messages = append(messages, msg)
				return nil
			})
			if err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return messages, nil
}

func (r *MessageRepository) indexText(id uuid.UUID, text string) error {
	doc := bluge.NewDocument(id.String()).
		AddField(bluge.NewTextField("text", text))
	return r.index.Update(doc.ID(), doc)
}

// getByIndex resolves "idx:msg:{uuid}" to the primary key and loads the
// stored record. Both misses map to ErrMessageNotFound.
func getByIndex(txn *badger.Txn, id uuid.UUID) (diskMessage, []byte, error) {
	item, err := txn.Get(indexKey(id))
	if errors.Is(err, badger.ErrKeyNotFound) {
		return diskMessage{}, nil, apperrors.ErrMessageNotFound
	}
	if err != nil {
		return diskMessage{}, nil, err
	}

	key, err := item.ValueCopy(nil)
	if err != nil {
		return diskMessage{}, nil, err
	}

	item, err = txn.Get(key)
	if errors.Is(err, badger.ErrKeyNotFound) {
		return diskMessage{}, nil, apperrors.ErrMessageNotFound
	}
	if err != nil {
		return diskMessage{}, nil, err
	}

	var dm diskMessage
	err = item.Value(func(value []byte) error {
		return json.Unmarshal(value, &dm)
	})
	if err != nil {
		return diskMessage{}, nil, err
	}
	return dm, key, nil
}

func primaryKey(pos uint64, id uuid.UUID) []byte {
	return []byte(fmt.Sprintf("%s%019d:%s", messagePrefix, pos, id))
}

func indexKey(id uuid.UUID) []byte {
	return []byte(fmt.Sprintf(messageIndexKey, id))
}

func fromMessage(m domain.Message) diskMessage {
	return diskMessage{
		ID:   m.ID.String(),
		From: m.From,
		To:   m.To,
		Text: m.Text,
		Kind: string(m.Kind),
		At:   m.At,
	}
}

func toMessage(dm diskMessage) (domain.Message, error) {
	id, err := uuid.Parse(dm.ID)
	if err != nil {
		return domain.Message{}, err
	}
	return domain.Message{
		ID:   id,
		From: dm.From,
		To:   dm.To,
		Text: dm.Text,
		Kind: domain.Kind(dm.Kind),
		At:   dm.At,
	}, nil
}
