package store

import (
	"errors"

	"gorm.io/gorm"

	"github.com/crewops/backend/internal/models"
)

// ErrNoSupervisor is returned when a worker has no active supervisor to escalate to
var ErrNoSupervisor = errors.New("no supervisor found")

// SupervisorInfo identifies the escalation target for a worker
type SupervisorInfo struct {
	SupervisorID uint
	WorkerName   string
}

// OrgStore resolves the org hierarchy
type OrgStore struct {
	db *gorm.DB
}

// NewOrgStore creates an org store
func NewOrgStore(db *gorm.DB) *OrgStore {
	return &OrgStore{db: db}
}

// ResolveSupervisor returns the worker's active supervisor
func (s *OrgStore) ResolveSupervisor(workerID uint) (*SupervisorInfo, error) {
	var worker models.User
	if err := s.db.First(&worker, workerID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNoSupervisor
		}
		return nil, err
	}

	if worker.SupervisorID == nil {
		return nil, ErrNoSupervisor
	}

	var supervisor models.User
	if err := s.db.Where("id = ? AND is_active = ?", *worker.SupervisorID, true).First(&supervisor).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNoSupervisor
		}
		return nil, err
	}

	name := worker.FullName
	if name == "" {
		name = worker.Username
	}

	return &SupervisorInfo{
		SupervisorID: supervisor.ID,
		WorkerName:   name,
	}, nil
}
