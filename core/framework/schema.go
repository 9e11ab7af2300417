package framework

import (
	"github.com/pkg/errors"
	"gorm.io/gorm"

	"github.com/abchrisxyz/ergowatch/core/logger"
)

// Schema describes a worker's database schema: its name and the DDL creating
// it. Every schema carries a _rev revision row and a _header row per worker.
type Schema struct {
	Name string
	SQL  string
}

type revision struct {
	Major int32
	Minor int32
}

// currentRevision is the revision expected by this release.
var currentRevision = revision{Major: 1, Minor: 0}

// Init creates the schema if needed and verifies its revision.
func (s *Schema) Init(db *gorm.DB) error {
	exists, err := s.exists(db)
	if err != nil {
		return err
	}
	if !exists {
		logger.Debugw("loading schema", "schema", s.Name)
		if err := db.Transaction(func(tx *gorm.DB) error {
			return tx.Exec(s.SQL).Error
		}); err != nil {
			return errors.Wrapf(err, "loading schema %s", s.Name)
		}
	}
	rev, err := s.revision(db)
	if err != nil {
		return err
	}
	if rev != currentRevision {
		return errors.Errorf("schema %s is at revision %d.%d, expected %d.%d - run migrations first",
			s.Name, rev.Major, rev.Minor, currentRevision.Major, currentRevision.Minor)
	}
	return nil
}

func (s *Schema) exists(db *gorm.DB) (bool, error) {
	var exists bool
	stmt := `
		select exists(
			select schema_name
			from information_schema.schemata
			where schema_name = ?
		);
	`
	if err := db.Raw(stmt, s.Name).Scan(&exists).Error; err != nil {
		return false, errors.Wrapf(err, "checking for schema %s", s.Name)
	}
	return exists, nil
}

func (s *Schema) revision(db *gorm.DB) (revision, error) {
	var rev revision
	stmt := "select rev_major as major, rev_minor as minor from " + s.Name + "._rev;"
	if err := db.Raw(stmt).Scan(&rev).Error; err != nil {
		return rev, errors.Wrapf(err, "reading schema revision of %s", s.Name)
	}
	return rev, nil
}
