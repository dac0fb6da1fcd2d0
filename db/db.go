package db

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/logger"

	"github.com/puoklam/groupchat/conversation"
	"github.com/puoklam/groupchat/db/model"
)

// Open connects to Postgres and migrates the schema.
func Open(conn string) (*gorm.DB, error) {
	db, err := gorm.Open(postgres.Open(conn), &gorm.Config{
		TranslateError: true,
		Logger:         logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	if err := db.AutoMigrate(&model.User{}, &model.Group{}, &model.Membership{}); err != nil {
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return db, nil
}

// Store is the Postgres conversation.Store. Unique indexes on the name key
// and on (group, user) back the uniqueness rules; rows read inside Update
// are locked FOR UPDATE.
type Store struct {
	db *gorm.DB
}

func NewStore(db *gorm.DB) *Store {
	return &Store{db: db}
}

func (s *Store) Ping(ctx context.Context) error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}

func (s *Store) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

func (s *Store) View(ctx context.Context, fn func(tx conversation.Tx) error) error {
	return fn(&tx{db: s.db.WithContext(ctx)})
}

func (s *Store) Update(ctx context.Context, fn func(tx conversation.Tx) error) error {
	return s.db.WithContext(ctx).Transaction(func(db *gorm.DB) error {
		return fn(&tx{db: db, locking: true})
	})
}

type tx struct {
	db      *gorm.DB
	locking bool
}

func (t *tx) query() *gorm.DB {
	if t.locking {
		return t.db.Clauses(clause.Locking{Strength: "UPDATE"})
	}
	return t.db
}

func (t *tx) group(cond string, arg string) (*conversation.Group, error) {
	var g model.Group
	err := t.query().Where(cond, arg).Take(&g).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return toGroup(&g), nil
}

func (t *tx) GroupByID(id string) (*conversation.Group, error) {
	return t.group("id = ?", id)
}

func (t *tx) GroupByName(key string) (*conversation.Group, error) {
	return t.group("name_key = ?", key)
}

func (t *tx) CreateGroup(g *conversation.Group) error {
	err := t.db.Create(fromGroup(g)).Error
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return conversation.ErrNameTaken
	}
	return err
}

func (t *tx) SaveGroup(g *conversation.Group) error {
	err := t.db.Model(&model.Group{}).Where("id = ?", g.ID).Updates(map[string]any{
		"name":          g.Name,
		"name_key":      g.NameKey,
		"has_password":  g.HasPassword,
		"join_password": g.JoinPassword,
		"owner_id":      g.OwnerID,
		"avatar":        g.Avatar,
	}).Error
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return conversation.ErrNameTaken
	}
	return err
}

func (t *tx) DeleteGroup(id string) error {
	if err := t.db.Where("group_id = ?", id).Delete(&model.Membership{}).Error; err != nil {
		return err
	}
	return t.db.Where("id = ?", id).Delete(&model.Group{}).Error
}

func (t *tx) GroupIDs() ([]string, error) {
	var ids []string
	err := t.db.Model(&model.Group{}).Pluck("id", &ids).Error
	return ids, err
}

func (t *tx) CountOwnedSince(ownerID string, since time.Time) (int, error) {
	var n int64
	err := t.db.Model(&model.Group{}).
		Where("owner_id = ? AND created_at > ?", ownerID, since).
		Count(&n).Error
	return int(n), err
}

func (t *tx) Membership(groupID, userID string) (*conversation.Membership, error) {
	var m model.Membership
	err := t.query().Where("group_id = ? AND user_id = ?", groupID, userID).Take(&m).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return toMembership(&m), nil
}

func (t *tx) CreateMembership(m *conversation.Membership) error {
	err := t.db.Create(fromMembership(m)).Error
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return conversation.ErrDuplicateMembership
	}
	return err
}

func (t *tx) SaveMembership(m *conversation.Membership) error {
	row := fromMembership(m)
	return t.db.Model(&model.Membership{}).
		Where("group_id = ? AND user_id = ?", m.GroupID, m.UserID).
		Updates(map[string]any{"muted": row.Muted, "read_at": row.ReadAt}).Error
}

func (t *tx) DeleteMembership(groupID, userID string) error {
	return t.db.Where("group_id = ? AND user_id = ?", groupID, userID).Delete(&model.Membership{}).Error
}

func (t *tx) CountMemberships(groupID string) (int, error) {
	var n int64
	err := t.db.Model(&model.Membership{}).Where("group_id = ?", groupID).Count(&n).Error
	return int(n), err
}

type memberRow struct {
	model.Membership
	Email          string
	Nickname       string
	CurrentChannel string
	PushToken      string
}

func (t *tx) Members(groupID string) ([]conversation.Member, error) {
	var rows []memberRow
	err := t.db.Model(&model.Membership{}).
		Select("memberships.*, " +
			"COALESCE(users.email, '') AS email, " +
			"COALESCE(users.nickname, '') AS nickname, " +
			"COALESCE(users.current_channel, '') AS current_channel, " +
			"COALESCE(users.push_token, '') AS push_token").
		Joins("LEFT JOIN users ON users.id = memberships.user_id").
		Where("memberships.group_id = ?", groupID).
		Order("memberships.created_at").
		Scan(&rows).Error
	if err != nil {
		return nil, err
	}
	out := make([]conversation.Member, 0, len(rows))
	for _, r := range rows {
		out = append(out, conversation.Member{
			Membership: *toMembership(&r.Membership),
			User: conversation.User{
				ID:             r.UserID,
				Email:          r.Email,
				Nickname:       r.Nickname,
				CurrentChannel: r.CurrentChannel,
				PushToken:      r.PushToken,
			},
		})
	}
	return out, nil
}

func (t *tx) User(id string) (*conversation.User, error) {
	var u model.User
	err := t.db.Where("id = ?", id).Take(&u).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &conversation.User{
		ID:             u.ID,
		Email:          u.Email,
		Nickname:       u.Nickname,
		CurrentChannel: u.CurrentChannel,
		PushToken:      u.PushToken,
	}, nil
}

func (t *tx) SaveUser(u *conversation.User) error {
	row := &model.User{
		ID:             u.ID,
		Email:          u.Email,
		Nickname:       u.Nickname,
		CurrentChannel: u.CurrentChannel,
		PushToken:      u.PushToken,
	}
	return t.db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "id"}},
		DoUpdates: clause.AssignmentColumns([]string{"email", "nickname", "current_channel", "push_token", "updated_at"}),
	}).Create(row).Error
}
