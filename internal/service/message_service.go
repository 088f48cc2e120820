package service

import (
	"context"
	"strings"
	"time"
	"unicode/utf8"

	"gorm.io/gorm"

	"github.com/d60-Lab/livesync/internal/model"
	"github.com/d60-Lab/livesync/internal/realtime"
	"github.com/d60-Lab/livesync/internal/repository"
	"github.com/d60-Lab/livesync/internal/session"
)

const searchLimit = 20

// MessageService 私信：会话、消息、管理员断开
type MessageService interface {
	ListConversations(ctx context.Context, me session.Identity) ([]model.Conversation, error)
	// ListMessages 返回全部消息并把对方发来的标记已读
	ListMessages(ctx context.Context, me session.Identity, conversationID int64) ([]model.Message, error)
	Send(ctx context.Context, me session.Identity, conversationID int64, content string) (*model.Message, error)
	SearchUsers(ctx context.Context, me session.Identity, query string) ([]model.UserSummary, error)
	GetOrCreate(ctx context.Context, me session.Identity, targetUserID int64) (id int64, created bool, err error)
	Disconnect(ctx context.Context, me session.Identity, conversationID int64) error
}

type messageService struct {
	db    *gorm.DB
	pub   *Publisher
	users repository.UserRepository
	convs repository.ConversationRepository
	msgs  repository.MessageRepository
}

func NewMessageService(db *gorm.DB, pub *Publisher) MessageService {
	return &messageService{
		db:    db,
		pub:   pub,
		users: repository.NewUserRepository(db),
		convs: repository.NewConversationRepository(db),
		msgs:  repository.NewMessageRepository(db),
	}
}

func (s *messageService) ListConversations(ctx context.Context, me session.Identity) ([]model.Conversation, error) {
	return s.convs.ListForUser(ctx, me.ID)
}

func (s *messageService) participant(ctx context.Context, me session.Identity, conversationID int64) (*model.ConversationRow, error) {
	row, err := s.convs.Get(ctx, conversationID)
	if err != nil {
		return nil, err
	}
	if !repository.Participant(*row, me.ID) {
		return nil, ErrForbidden
	}
	return row, nil
}

func (s *messageService) ListMessages(ctx context.Context, me session.Identity, conversationID int64) ([]model.Message, error) {
	row, err := s.participant(ctx, me, conversationID)
	if err != nil {
		return nil, err
	}
	list, err := s.msgs.ListByConversation(ctx, conversationID)
	if err != nil {
		return nil, err
	}
	users, err := s.users.GetMany(ctx, []int64{row.UserAID, row.UserBID})
	if err != nil {
		return nil, err
	}
	for i := range list {
		if u, ok := users[list[i].SenderID]; ok {
			list[i].SenderName = u.Name
		}
	}
	if err := s.msgs.MarkRead(ctx, conversationID, me.ID); err != nil {
		return nil, err
	}
	return list, nil
}

func (s *messageService) Send(ctx context.Context, me session.Identity, conversationID int64, content string) (*model.Message, error) {
	content = strings.TrimSpace(content)
	if content == "" || utf8.RuneCountInString(content) > 4000 {
		return nil, ErrInvalid
	}
	row, err := s.participant(ctx, me, conversationID)
	if err != nil {
		return nil, err
	}
	if row.IsDisconnectedByAdmin && me.Role == model.RoleStudent {
		return nil, ErrChatClosed
	}

	msg := &model.Message{ConversationID: conversationID, SenderID: me.ID, SenderName: me.Name, Content: content, CreatedAt: time.Now()}
	err = s.pub.Publish(ctx, func(tx *gorm.DB, ev *Events) error {
		if err := repository.NewMessageRepository(tx).Create(ctx, msg); err != nil {
			return err
		}
		if err := repository.NewConversationRepository(tx).Touch(ctx, conversationID, msg.CreatedAt); err != nil {
			return err
		}
		payload := model.NewMessageEvent{ConversationID: conversationID, Message: *msg}
		for _, uid := range []int64{row.UserAID, row.UserBID} {
			if err := ev.Emit(UserRoom(uid), realtime.SessionKey(realtime.KindNewMessage).String(), payload); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return msg, nil
}

// SearchUsers 按姓名/学号/工号模糊匹配，少于两个字符直接返回空
func (s *messageService) SearchUsers(ctx context.Context, me session.Identity, query string) ([]model.UserSummary, error) {
	query = strings.TrimSpace(query)
	if utf8.RuneCountInString(query) < 2 {
		return []model.UserSummary{}, nil
	}
	found, err := s.users.Search(ctx, query, me.ID, searchLimit)
	if err != nil {
		return nil, err
	}
	out := make([]model.UserSummary, 0, len(found))
	for _, u := range found {
		out = append(out, u.Summary())
	}
	return out, nil
}

func (s *messageService) GetOrCreate(ctx context.Context, me session.Identity, targetUserID int64) (int64, bool, error) {
	if targetUserID <= 0 || targetUserID == me.ID {
		return 0, false, ErrInvalid
	}
	if _, err := s.users.Get(ctx, targetUserID); err != nil {
		return 0, false, err
	}
	row, created, err := s.convs.GetOrCreate(ctx, me.ID, targetUserID)
	if err != nil {
		return 0, false, err
	}
	return row.ID, created, nil
}

func (s *messageService) Disconnect(ctx context.Context, me session.Identity, conversationID int64) error {
	if !me.IsAdmin() {
		return ErrForbidden
	}
	return s.pub.Publish(ctx, func(tx *gorm.DB, ev *Events) error {
		convs := repository.NewConversationRepository(tx)
		if err := convs.Disconnect(ctx, conversationID); err != nil {
			return err
		}
		row, err := convs.Get(ctx, conversationID)
		if err != nil {
			return err
		}
		payload := model.ChatDisconnectedEvent{ConversationID: conversationID}
		for _, uid := range []int64{row.UserAID, row.UserBID} {
			if err := ev.Emit(UserRoom(uid), realtime.SessionKey(realtime.KindChatDisconnected).String(), payload); err != nil {
				return err
			}
		}
		return nil
	})
}
