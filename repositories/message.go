//go:generate go run go.uber.org/mock/mockgen -source=message.go -destination=../mocks/mock_message_repository.go -package=mocks
package repositories

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/samber/lo"

	"carechat/domain"
	"carechat/errors"
)

type IMessageRepository interface {
	Create(message *domain.Message) error
	Get(id uint64) (domain.Message, error)
	Update(id uint64, mutate func(*domain.Message) error) (domain.Message, error)
	Conversation(conv domain.ConversationID, limit int, cursor *string) ([]domain.Message, *string, error)
	ByUser(userID string, limit int, cursor *string) ([]domain.Message, *string, error)
	LastMessage(conv domain.ConversationID) (domain.Message, error)
	UnreadFrom(conv domain.ConversationID, senderID string) (int, error)
	Counterparts(userID string) ([]string, error)
	SoftDeleted(after time.Time) ([]domain.Message, error)
	Close() error
}

// MessageRepository persists messages in BadgerDB.
//
// The primary key is "msg:{conversation}:{createdAt_padded}:{id_padded}":
//  1. The 19-digit zero-padded timestamp makes a forward prefix scan
//     return conversation history already sorted by createdAt.
//  2. The 12-digit zero-padded id breaks ties between messages created
//     in the same nanosecond, and keeps id order within a tie.
//
// Two pointer indexes reference the primary key: "id:{id}" for by-id
// mutation, and "usr:{user}:{id}" for each participant's feed.
type MessageRepository struct {
	db  *badger.DB
	seq *badger.Sequence
	log *slog.Logger
}

func NewMessageRepository(db *badger.DB, log *slog.Logger) (*MessageRepository, error) {
	seq, err := db.GetSequence([]byte("seq:message"), 128)
	if err != nil {
		return nil, fmt.Errorf("message sequence: %w", err)
	}
	return &MessageRepository{db: db, seq: seq, log: log}, nil
}

// Close releases the id sequence lease. Unused ids in the current band
// are abandoned; the sequence stays monotonic.
func (m *MessageRepository) Close() error {
	return m.seq.Release()
}

func primaryKey(msg *domain.Message) []byte {
	return []byte(fmt.Sprintf("msg:%s:%019d:%012d",
		msg.ConversationID, msg.CreatedAt.UnixNano(), msg.ID))
}

func idKey(id uint64) []byte {
	return []byte(fmt.Sprintf("id:%012d", id))
}

func userKey(userID string, id uint64) []byte {
	return []byte(fmt.Sprintf("usr:%s:%012d", userID, id))
}

// Create assigns the next monotonic id and writes the row plus its
// pointer indexes in one transaction.
func (m *MessageRepository) Create(message *domain.Message) error {
	next, err := m.seq.Next()
	if err != nil {
		return fmt.Errorf("next message id: %w", err)
	}
	message.ID = next + 1 // ids start at 1

	row, err := json.Marshal(message)
	if err != nil {
		return err
	}
	pk := primaryKey(message)
	return m.db.Update(func(txn *badger.Txn) error {
		if err := txn.Set(pk, row); err != nil {
			return err
		}
		if err := txn.Set(idKey(message.ID), pk); err != nil {
			return err
		}
		if err := txn.Set(userKey(message.SenderID, message.ID), pk); err != nil {
			return err
		}
		return txn.Set(userKey(message.ReceiverID, message.ID), pk)
	})
}

func (m *MessageRepository) Get(id uint64) (domain.Message, error) {
	var message domain.Message
	err := m.db.View(func(txn *badger.Txn) error {
		var err error
		message, err = getByID(txn, id)
		return err
	})
	return message, err
}

// Update applies mutate to the row identified by id as an atomic
// read-modify-write. Badger's optimistic transactions abort the loser
// of two overlapping writers on the same key, so a conflict re-reads
// the fresh row and reapplies mutate: concurrent mutations of disjoint
// fields (sender edit vs. receiver status transition) both land, in
// commit order.
func (m *MessageRepository) Update(id uint64, mutate func(*domain.Message) error) (domain.Message, error) {
	for {
		var message domain.Message
		err := m.db.Update(func(txn *badger.Txn) error {
			var err error
			message, err = getByID(txn, id)
			if err != nil {
				return err
			}
			if err = mutate(&message); err != nil {
				return err
			}
			row, err := json.Marshal(&message)
			if err != nil {
				return err
			}
			return txn.Set(primaryKey(&message), row)
		})
		if err == badger.ErrConflict {
			continue
		}
		return message, err
	}
}

func getByID(txn *badger.Txn, id uint64) (domain.Message, error) {
	var message domain.Message
	item, err := txn.Get(idKey(id))
	if err == badger.ErrKeyNotFound {
		return message, fmt.Errorf("%w: message %d", errors.ErrNotFound, id)
	}
	if err != nil {
		return message, err
	}
	pk, err := item.ValueCopy(nil)
	if err != nil {
		return message, err
	}
	row, err := txn.Get(pk)
	if err != nil {
		return message, err
	}
	err = row.Value(func(value []byte) error {
		return json.Unmarshal(value, &message)
	})
	return message, err
}

// Conversation returns history in non-decreasing createdAt order, ties
// broken by id, which the key layout gives for free on a forward scan.
// The returned cursor resumes the scan after the last key seen.
func (m *MessageRepository) Conversation(conv domain.ConversationID, limit int, cursor *string) ([]domain.Message, *string, error) {
	prefix := fmt.Sprintf("msg:%s:", conv)
	return m.scan(prefix, limit, cursor, func(txn *badger.Txn, value []byte) (domain.Message, error) {
		var message domain.Message
		err := json.Unmarshal(value, &message)
		return message, err
	})
}

// ByUser returns every message the user sent or received, oldest first.
func (m *MessageRepository) ByUser(userID string, limit int, cursor *string) ([]domain.Message, *string, error) {
	prefix := fmt.Sprintf("usr:%s:", userID)
	return m.scan(prefix, limit, cursor, func(txn *badger.Txn, pk []byte) (domain.Message, error) {
		var message domain.Message
		item, err := txn.Get(pk)
		if err != nil {
			return message, err
		}
		err = item.Value(func(value []byte) error {
			return json.Unmarshal(value, &message)
		})
		return message, err
	})
}

// scan walks a key prefix forward, decoding each value through load.
// lastKey memorizes the cursor part of the final key visited; the
// cursor comes back nil when the scan ran off the prefix, so callers
// can tell "page full" from "nothing left".
func (m *MessageRepository) scan(prefix string, limit int, cursor *string,
	load func(*badger.Txn, []byte) (domain.Message, error)) ([]domain.Message, *string, error) {

	var messages []domain.Message
	var lastKey string
	exhausted := true
	err := m.db.View(func(txn *badger.Txn) error {
		pfx := []byte(prefix)
		it := txn.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()

		seekKey := pfx
		if cursor != nil {
			seekKey = append([]byte{}, pfx...)
			seekKey = append(seekKey, []byte(*cursor)...)
		}
		it.Seek(seekKey)
		if cursor != nil && it.ValidForPrefix(pfx) {
			it.Next()
		}

		for ; it.ValidForPrefix(pfx); it.Next() {
			if limit > 0 && len(messages) == limit {
				exhausted = false
				break
			}
			item := it.Item()
			lastKey = string(item.Key()[len(prefix):])
			value, err := item.ValueCopy(nil)
			if err != nil {
				return err
			}
			message, err := load(txn, value)
			if err != nil {
				return err
			}
			messages = append(messages, message)
		}
		return nil
	})
	if err != nil {
		return nil, nil, err
	}
	if exhausted {
		return messages, nil, nil
	}
	return messages, &lastKey, nil
}

// LastMessage returns the most recent message of a conversation using a
// reverse scan from the highest possible key under the prefix.
func (m *MessageRepository) LastMessage(conv domain.ConversationID) (domain.Message, error) {
	var message domain.Message
	err := m.db.View(func(txn *badger.Txn) error {
		prefix := []byte(fmt.Sprintf("msg:%s:", conv))
		options := badger.DefaultIteratorOptions
		options.Reverse = true
		it := txn.NewIterator(options)
		defer it.Close()

		seekKey := append(append([]byte{}, prefix...), []byte("9999999999999999999")...)
		it.Seek(seekKey)
		if !it.ValidForPrefix(prefix) {
			return fmt.Errorf("%w: conversation %s", errors.ErrNotFound, conv)
		}
		return it.Item().Value(func(value []byte) error {
			return json.Unmarshal(value, &message)
		})
	})
	return message, err
}

// UnreadFrom counts live messages sent by senderID in the conversation
// that have not yet reached READ.
func (m *MessageRepository) UnreadFrom(conv domain.ConversationID, senderID string) (int, error) {
	messages, _, err := m.Conversation(conv, 0, nil)
	if err != nil {
		return 0, err
	}
	unread := lo.CountBy(messages, func(msg domain.Message) bool {
		return msg.SenderID == senderID && msg.Status != domain.StatusRead && !msg.Deleted()
	})
	return unread, nil
}

// Counterparts lists the distinct users the given user has exchanged at
// least one message with.
func (m *MessageRepository) Counterparts(userID string) ([]string, error) {
	messages, _, err := m.ByUser(userID, 0, nil)
	if err != nil {
		return nil, err
	}
	others := lo.Map(messages, func(msg domain.Message, _ int) string {
		return msg.Counterpart(userID)
	})
	return lo.Uniq(others), nil
}

// SoftDeleted returns AUDIO messages soft-deleted after the given time.
// The attachment sweeper uses this to retry file removals that failed at
// delete time.
func (m *MessageRepository) SoftDeleted(after time.Time) ([]domain.Message, error) {
	var deleted []domain.Message
	err := m.db.View(func(txn *badger.Txn) error {
		prefix := []byte("msg:")
		it := txn.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			err := it.Item().Value(func(value []byte) error {
				var message domain.Message
				if err := json.Unmarshal(value, &message); err != nil {
					return err
				}
				if message.Type == domain.TypeAudio && message.Deleted() && message.DeletedAt.After(after) {
					deleted = append(deleted, message)
				}
				return nil
			})
			if err != nil {
				return err
			}
		}
		return nil
	})
	return deleted, err
}
