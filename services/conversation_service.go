package services

import (
	"log/slog"
	"sort"

	"github.com/samber/lo"

	"carechat/contract"
	"carechat/domain"
	"carechat/repositories"
)

type IConversationService interface {
	List(userID string) ([]domain.ConversationSummary, error)
	Correspondents(userID string) []domain.Profile
}

// ConversationService derives per-user conversation summaries by reading
// the message store. A conversation is never stored on its own: it only
// exists as the set of messages sharing a canonical key.
type ConversationService struct {
	repository repositories.IMessageRepository
	directory  contract.UserDirectory
	log        *slog.Logger
}

func NewConversationService(
	repository repositories.IMessageRepository,
	directory contract.UserDirectory,
	log *slog.Logger,
) *ConversationService {
	return &ConversationService{repository: repository, directory: directory, log: log}
}

// List returns one summary per counterpart the user has exchanged at
// least one message with, ordered most-recent-activity-first. A
// counterpart whose profile vanished from the directory is skipped.
func (s *ConversationService) List(userID string) ([]domain.ConversationSummary, error) {
	counterparts, err := s.repository.Counterparts(userID)
	if err != nil {
		return nil, err
	}

	summaries := make([]domain.ConversationSummary, 0, len(counterparts))
	for _, other := range counterparts {
		profile, err := s.directory.Lookup(other)
		if err != nil {
			s.log.Debug("Counterpart missing from directory, skipping", "user", other)
			continue
		}
		conv, err := domain.DeriveConversation(userID, other)
		if err != nil {
			continue
		}
		last, err := s.repository.LastMessage(conv)
		if err != nil {
			continue
		}
		unread, err := s.repository.UnreadFrom(conv, other)
		if err != nil {
			return nil, err
		}
		summaries = append(summaries, domain.ConversationSummary{
			ConversationID: conv,
			Peer:           profile,
			LastMessage:    last.Preview(),
			LastType:       last.Type,
			LastActivity:   last.CreatedAt,
			UnreadCount:    unread,
		})
	}

	sort.Slice(summaries, func(i, j int) bool {
		return summaries[i].LastActivity.After(summaries[j].LastActivity)
	})
	return summaries, nil
}

// Correspondents lists the directory profiles the user may message:
// everyone but themselves.
func (s *ConversationService) Correspondents(userID string) []domain.Profile {
	return lo.Filter(s.directory.List(), func(p domain.Profile, _ int) bool {
		return p.ID != userID
	})
}
