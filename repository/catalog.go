package repository

import (
	"errors"
	"fmt"

	"AuraFM/config"
	"AuraFM/core/watch"
	"AuraFM/db"
	"AuraFM/logger"
	"AuraFM/model"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// State of the catalog store's underlying storage.
type State int

const (
	StateIdle State = iota
	StateReady
)

// Subject is one synced record: server metadata plus the decoded entity.
type Subject struct {
	Meta   model.MetaData
	Entity model.Entity
}

// CatalogStore owns the local persisted catalog. Load applies one batch
// atomically and emits a single Loaded event after the write commits, so
// consumers never observe partial batches.
type CatalogStore interface {
	Start() error
	Close() error
	State() *watch.Cell[State]
	Events() *watch.Bus[[]model.Operation]

	Load(subjects []Subject, t model.EntityType) ([]model.Operation, error)

	EntityByID(t model.EntityType, id int64) (model.Entity, bool, error)
	BroadcastByID(id int64) (*model.Broadcast, bool, error)
	RecentBroadcasts(limit int) ([]model.Broadcast, error)
	ChannelByIdentifier(identifier string) (*model.Channel, bool, error)
	SettingByIdentifier(identifier string) (*model.Setting, bool, error)
	Programs() ([]model.Program, error)

	Reset() error
}

// mysqlCatalogStore implements CatalogStore on GORM/MySQL.
type mysqlCatalogStore struct {
	cfg    *config.Config
	gdb    *gorm.DB
	state  *watch.Cell[State]
	events *watch.Bus[[]model.Operation]
}

// NewMySQLCatalogStore creates a catalog store. Storage is opened by Start.
func NewMySQLCatalogStore(cfg *config.Config) CatalogStore {
	return &mysqlCatalogStore{
		cfg:    cfg,
		state:  watch.NewCell(StateIdle),
		events: watch.NewBus[[]model.Operation](),
	}
}

func (s *mysqlCatalogStore) Start() error {
	if s.gdb == nil {
		gdb, err := db.Connect(s.cfg)
		if err != nil {
			return err
		}
		s.gdb = gdb
	}
	if err := db.Migrate(s.gdb); err != nil {
		return err
	}
	s.state.Set(StateReady)
	return nil
}

func (s *mysqlCatalogStore) Close() error {
	s.events.Close()
	s.state.Close()
	if s.gdb == nil {
		return nil
	}
	return db.Close(s.gdb)
}

func (s *mysqlCatalogStore) State() *watch.Cell[State] {
	return s.state
}

func (s *mysqlCatalogStore) Events() *watch.Bus[[]model.Operation] {
	return s.events
}

// Reset wipes the catalog. Safe to call before Start.
func (s *mysqlCatalogStore) Reset() error {
	if s.gdb == nil {
		gdb, err := db.Connect(s.cfg)
		if err != nil {
			return err
		}
		s.gdb = gdb
	}
	if err := db.DropAll(s.gdb); err != nil {
		return err
	}
	return db.Migrate(s.gdb)
}

// Partition splits a batch into upserts and deletes by tombstone.
// Exactly one of the two applies to every subject.
func Partition(subjects []Subject) (upserts, deletes []Subject) {
	for _, sub := range subjects {
		if sub.Meta.Tombstoned() {
			deletes = append(deletes, sub)
		} else {
			upserts = append(upserts, sub)
		}
	}
	return upserts, deletes
}

func (s *mysqlCatalogStore) Load(subjects []Subject, t model.EntityType) ([]model.Operation, error) {
	upserts, deletes := Partition(subjects)
	ops := make([]model.Operation, 0, len(subjects))

	err := s.gdb.Transaction(func(tx *gorm.DB) error {
		for _, sub := range upserts {
			if err := upsertEntity(tx, sub.Entity); err != nil {
				return err
			}
			ops = append(ops, model.Operation{ID: sub.Entity.EntityID(), Type: t, Kind: model.OpUpsert})
		}

		deleteIDs := make([]int64, 0, len(deletes))
		for _, sub := range deletes {
			deleteIDs = append(deleteIDs, sub.Entity.EntityID())
			ops = append(ops, model.Operation{ID: sub.Entity.EntityID(), Type: t, Kind: model.OpDelete})
		}
		if len(deleteIDs) > 0 {
			if err := deleteByType(tx, t, deleteIDs); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to load %s batch: %w", t, err)
	}

	// Emit only after the write committed.
	s.events.Publish(ops)
	logger.Debug("catalog batch loaded",
		logger.String("type", string(t)),
		logger.Int("upserts", len(upserts)),
		logger.Int("deletes", len(deletes)))
	return ops, nil
}

// upsertEntity replaces the row for the entity. Associations are wired by id
// through the join table; referenced rows arrive through their own sweep.
func upsertEntity(tx *gorm.DB, entity model.Entity) error {
	switch e := entity.(type) {
	case *model.Broadcast:
		hostIDs := e.HostIDs()
		row := *e
		row.Program = nil
		row.Hosts = nil
		if err := tx.Clauses(clause.OnConflict{UpdateAll: true}).Create(&row).Error; err != nil {
			return fmt.Errorf("upsert broadcast %d: %w", e.ID, err)
		}
		return replaceHosts(tx, e.ID, hostIDs)
	case *model.Channel:
		row := *e
		row.CurrentBroadcast = nil
		if err := tx.Clauses(clause.OnConflict{UpdateAll: true}).Create(&row).Error; err != nil {
			return fmt.Errorf("upsert channel %d: %w", e.ID, err)
		}
		return nil
	case *model.Program:
		if err := tx.Clauses(clause.OnConflict{UpdateAll: true}).Create(e).Error; err != nil {
			return fmt.Errorf("upsert program %d: %w", e.ID, err)
		}
		return nil
	case *model.Employee:
		if err := tx.Clauses(clause.OnConflict{UpdateAll: true}).Create(e).Error; err != nil {
			return fmt.Errorf("upsert employee %d: %w", e.ID, err)
		}
		return nil
	case *model.Setting:
		if err := tx.Clauses(clause.OnConflict{UpdateAll: true}).Create(e).Error; err != nil {
			return fmt.Errorf("upsert setting %d: %w", e.ID, err)
		}
		return nil
	default:
		return fmt.Errorf("unmapped entity %T", entity)
	}
}

// replaceHosts rewires the broadcast↔host join rows by id only, never
// touching the employee rows themselves.
func replaceHosts(tx *gorm.DB, broadcastID int64, hostIDs []int64) error {
	if err := tx.Exec("DELETE FROM broadcast_hosts WHERE broadcast_id = ?", broadcastID).Error; err != nil {
		return fmt.Errorf("clear hosts of broadcast %d: %w", broadcastID, err)
	}
	for _, hid := range hostIDs {
		if err := tx.Exec("INSERT INTO broadcast_hosts (broadcast_id, employee_id) VALUES (?, ?)", broadcastID, hid).Error; err != nil {
			return fmt.Errorf("wire host %d of broadcast %d: %w", hid, broadcastID, err)
		}
	}
	return nil
}

func deleteByType(tx *gorm.DB, t model.EntityType, ids []int64) error {
	var err error
	switch t {
	case model.EntityBroadcast:
		if err = tx.Exec("DELETE FROM broadcast_hosts WHERE broadcast_id IN ?", ids).Error; err == nil {
			err = tx.Delete(&model.Broadcast{}, ids).Error
		}
	case model.EntityChannel:
		err = tx.Delete(&model.Channel{}, ids).Error
	case model.EntityProgram:
		err = tx.Delete(&model.Program{}, ids).Error
	case model.EntityEmployee:
		err = tx.Delete(&model.Employee{}, ids).Error
	case model.EntitySetting:
		err = tx.Delete(&model.Setting{}, ids).Error
	default:
		err = fmt.Errorf("unmapped entity type %q", t)
	}
	if err != nil {
		return fmt.Errorf("delete %s rows: %w", t, err)
	}
	return nil
}

func (s *mysqlCatalogStore) EntityByID(t model.EntityType, id int64) (model.Entity, bool, error) {
	switch t {
	case model.EntityBroadcast:
		b, ok, err := s.BroadcastByID(id)
		return b, ok, err
	case model.EntityChannel:
		var c model.Channel
		ok, err := found(s.gdb.Preload("CurrentBroadcast").First(&c, id).Error)
		return &c, ok, err
	case model.EntityProgram:
		var p model.Program
		ok, err := found(s.gdb.First(&p, id).Error)
		return &p, ok, err
	case model.EntityEmployee:
		var e model.Employee
		ok, err := found(s.gdb.First(&e, id).Error)
		return &e, ok, err
	case model.EntitySetting:
		var st model.Setting
		ok, err := found(s.gdb.First(&st, id).Error)
		return &st, ok, err
	default:
		return nil, false, fmt.Errorf("unmapped entity type %q", t)
	}
}

// found collapses the gorm not-found error into an ok flag.
func found(err error) (bool, error) {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

func (s *mysqlCatalogStore) BroadcastByID(id int64) (*model.Broadcast, bool, error) {
	var b model.Broadcast
	err := s.gdb.Preload("Program").Preload("Hosts").First(&b, id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("query broadcast %d: %w", id, err)
	}
	return &b, true, nil
}

func (s *mysqlCatalogStore) RecentBroadcasts(limit int) ([]model.Broadcast, error) {
	var bs []model.Broadcast
	err := s.gdb.
		Preload("Program").
		Where("hidden = ? AND program_id IS NOT NULL AND aired_at IS NOT NULL", false).
		Order("aired_at DESC").
		Limit(limit).
		Find(&bs).Error
	if err != nil {
		return nil, fmt.Errorf("query recent broadcasts: %w", err)
	}
	return bs, nil
}

func (s *mysqlCatalogStore) ChannelByIdentifier(identifier string) (*model.Channel, bool, error) {
	var c model.Channel
	err := s.gdb.Preload("CurrentBroadcast").Where("identifier = ?", identifier).First(&c).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("query channel %q: %w", identifier, err)
	}
	return &c, true, nil
}

func (s *mysqlCatalogStore) SettingByIdentifier(identifier string) (*model.Setting, bool, error) {
	var st model.Setting
	err := s.gdb.Where("identifier = ?", identifier).First(&st).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("query setting %q: %w", identifier, err)
	}
	return &st, true, nil
}

func (s *mysqlCatalogStore) Programs() ([]model.Program, error) {
	var ps []model.Program
	if err := s.gdb.Order("id").Find(&ps).Error; err != nil {
		return nil, fmt.Errorf("query programs: %w", err)
	}
	return ps, nil
}
