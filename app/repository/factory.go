package repository

import (
	"sync"

	"gorm.io/gorm"
)

// Repositories holds all repository instances
type Repositories struct {
	Submission SubmissionRepository
	User       UserRepository
	Profile    ProfileRepository
}

// NewRepositories creates all repositories over one database handle
func NewRepositories(db *gorm.DB) *Repositories {
	return &Repositories{
		Submission: NewSubmissionRepository(db),
		User:       NewUserRepository(db),
		Profile:    NewProfileRepository(db),
	}
}

// Factory manages repository instances and ensures they are built once
type Factory struct {
	db    *gorm.DB
	repos *Repositories
	once  sync.Once
}

// NewFactory creates a new repository factory
func NewFactory(db *gorm.DB) *Factory {
	return &Factory{
		db: db,
	}
}

// GetRepositories returns the shared repositories of this factory
func (f *Factory) GetRepositories() *Repositories {
	f.once.Do(func() {
		f.repos = NewRepositories(f.db)
	})
	return f.repos
}

// GetSubmissionRepository returns the submission repository instance
func (f *Factory) GetSubmissionRepository() SubmissionRepository {
	return f.GetRepositories().Submission
}

// GetUserRepository returns the user repository instance
func (f *Factory) GetUserRepository() UserRepository {
	return f.GetRepositories().User
}

// GetProfileRepository returns the profile repository instance
func (f *Factory) GetProfileRepository() ProfileRepository {
	return f.GetRepositories().Profile
}
