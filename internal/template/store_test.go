package template

import (
	"context"
	"database/sql"
	"encoding/json"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/suite"

	"github.com/divyang-garg/docxtract/internal/docerrors"
)

type StoreTestSuite struct {
	suite.Suite
	db    *sql.DB
	mock  sqlmock.Sqlmock
	store *Store
}

func (s *StoreTestSuite) SetupTest() {
	var err error
	s.db, s.mock, err = sqlmock.New()
	s.Require().NoError(err)
	s.store = New(s.db, 0, nil, nil)
}

func (s *StoreTestSuite) TearDownTest() {
	s.db.Close()
}

func TestStoreTestSuite(t *testing.T) {
	suite.Run(t, new(StoreTestSuite))
}

func (s *StoreTestSuite) sqlmockRows(templates ...*Template) *sqlmock.Rows {
	rows := sqlmock.NewRows([]string{"id", "label", "sample_count", "structural_signature", "field_patterns", "field_confidence", "created_at", "updated_at"})
	for _, t := range templates {
		sig, _ := json.Marshal(t.StructuralSignature)
		patterns, _ := json.Marshal(t.FieldPatterns)
		confidence, _ := json.Marshal(t.FieldConfidence)
		rows.AddRow(t.ID, t.Label, t.SampleCount, sig, patterns, confidence, t.CreatedAt, t.UpdatedAt)
	}
	return rows
}

func (s *StoreTestSuite) TestUpsert_InsertsNewTemplate() {
	tmpl := &Template{
		Label:               "oab",
		SampleCount:         1,
		StructuralSignature: StructuralSignature{SchemaKeys: []string{"nome"}},
		FieldPatterns:       map[string]Pattern{},
		FieldConfidence:     map[string]float64{"nome": 1.0},
	}

	s.mock.ExpectExec("INSERT INTO templates").
		WithArgs(sqlmock.AnyArg(), "oab", 1, sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))

	s.mock.ExpectQuery("SELECT COUNT\\(\\*\\) FROM templates WHERE label").
		WithArgs("oab").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(1))

	s.mock.ExpectQuery("SELECT id, label, sample_count").
		WithArgs("oab").
		WillReturnRows(s.sqlmockRows(tmpl))

	err := s.store.Upsert(context.Background(), "oab", tmpl)

	s.Require().NoError(err)
	s.NotEmpty(tmpl.ID)
	s.NoError(s.mock.ExpectationsWereMet())
}

func (s *StoreTestSuite) TestUpsert_DatabaseErrorIsWrapped() {
	tmpl := &Template{Label: "oab", FieldPatterns: map[string]Pattern{}, FieldConfidence: map[string]float64{}}

	s.mock.ExpectExec("INSERT INTO templates").
		WillReturnError(sql.ErrConnDone)

	err := s.store.Upsert(context.Background(), "oab", tmpl)

	s.Error(err)
	s.Contains(err.Error(), "failed to upsert template")
}

func (s *StoreTestSuite) TestList_OrdersBySampleCountThenUpdatedAt() {
	older := &Template{ID: "t1", Label: "oab", SampleCount: 5, FieldPatterns: map[string]Pattern{}, FieldConfidence: map[string]float64{}, CreatedAt: time.Now(), UpdatedAt: time.Now()}
	newer := &Template{ID: "t2", Label: "oab", SampleCount: 5, FieldPatterns: map[string]Pattern{}, FieldConfidence: map[string]float64{}, CreatedAt: time.Now(), UpdatedAt: time.Now().Add(time.Minute)}

	s.mock.ExpectQuery("SELECT id, label, sample_count").
		WithArgs("oab").
		WillReturnRows(s.sqlmockRows(newer, older))

	out, err := s.store.List(context.Background(), "oab")

	s.Require().NoError(err)
	s.Require().Len(out, 2)
	s.Equal("t2", out[0].ID)
}

func (s *StoreTestSuite) TestGet_NotFoundReturnsInternalError() {
	s.mock.ExpectQuery("SELECT id, label, sample_count").
		WithArgs("oab", "missing").
		WillReturnError(sql.ErrNoRows)

	_, err := s.store.Get(context.Background(), "oab", "missing")

	s.Error(err)
	s.True(docerrors.Is(err, docerrors.KindInternal))
}

func (s *StoreTestSuite) TestCountPerLabel_AggregatesCounts() {
	s.mock.ExpectQuery("SELECT label, COUNT").
		WillReturnRows(sqlmock.NewRows([]string{"label", "count"}).
			AddRow("oab", 3).
			AddRow("tela", 1))

	counts, err := s.store.CountPerLabel(context.Background())

	s.Require().NoError(err)
	s.Equal(3, counts["oab"])
	s.Equal(1, counts["tela"])
}

func (s *StoreTestSuite) TestUpsert_EvictsLowestConfidenceOverCap() {
	var existing []*Template
	for i := 0; i < DefaultPerLabelCap-1; i++ {
		existing = append(existing, &Template{
			ID: "keep" + string(rune('a'+i)), Label: "oab", SampleCount: 10,
			FieldPatterns: map[string]Pattern{}, FieldConfidence: map[string]float64{"f": 0.9},
			CreatedAt: time.Now(), UpdatedAt: time.Now(),
		})
	}
	weakest := &Template{
		ID: "weakest", Label: "oab", SampleCount: 2,
		FieldPatterns: map[string]Pattern{}, FieldConfidence: map[string]float64{"f": 0.1},
		CreatedAt: time.Now(), UpdatedAt: time.Now(),
	}
	newTmpl := &Template{
		Label: "oab", SampleCount: 2,
		FieldPatterns: map[string]Pattern{}, FieldConfidence: map[string]float64{"f": 0.5},
	}

	s.mock.ExpectExec("INSERT INTO templates").WillReturnResult(sqlmock.NewResult(0, 1))
	s.mock.ExpectQuery("SELECT COUNT\\(\\*\\) FROM templates WHERE label").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(DefaultPerLabelCap + 1))

	allRows := append([]*Template{newTmpl}, existing...)
	allRows = append(allRows, weakest)
	newTmpl.ID = "brandnew" // assign before building rows so scan round-trips an id
	s.mock.ExpectQuery("SELECT id, label, sample_count").
		WillReturnRows(s.sqlmockRows(allRows...))

	s.mock.ExpectExec("DELETE FROM templates WHERE label = \\$1 AND id = \\$2").
		WithArgs("oab", "weakest").
		WillReturnResult(sqlmock.NewResult(0, 1))

	err := s.store.Upsert(context.Background(), "oab", newTmpl)

	s.Require().NoError(err)
	s.NoError(s.mock.ExpectationsWereMet())
}
