// Copyright 2023 Canonical Ltd.
// Licensed under Apache 2.0, see LICENCE file for details.

package sqlchain_test

import (
	"context"
	"errors"

	. "gopkg.in/check.v1"

	"github.com/canonical/sqlchain"
)

func (s *PackageSuite) TestNewErrors(c *C) {
	_, err := sqlchain.New(nil, "sqlite3")
	c.Assert(err, ErrorMatches, "cannot create data source: nil database")

	_, err = sqlchain.Open("sqlite3", ":memory:")
	c.Assert(err, IsNil)
}

func (s *PackageSuite) TestUnsupportedDriver(c *C) {
	db := setupDS(c).PlainDB()
	_, err := sqlchain.New(db, "oracle")
	c.Assert(err, ErrorMatches, `unsupported dialect "oracle"`)
}

func (s *PackageSuite) TestOpenMySQLDriver(c *C) {
	// sql.Open validates the DSN without connecting.
	ds, err := sqlchain.Open("mysql", "user:password@tcp(localhost:3306)/db")
	c.Assert(err, IsNil)
	c.Assert(ds.Dialect(), Equals, "mysql")
}

func (s *PackageSuite) TestDialectPrefixMatch(c *C) {
	ds := setupDS(c)
	c.Assert(ds.Dialect(), Equals, "sqlite3")

	wrapped, err := sqlchain.New(ds.PlainDB(), "sqlite3_extended")
	c.Assert(err, IsNil)
	c.Assert(wrapped.Dialect(), Equals, "sqlite3")
}

func (s *PackageSuite) TestGetTableOrView(c *C) {
	ds := setupDS(c)
	ctx := context.Background()

	t, found, err := ds.GetTableOrView(ctx, "employee")
	c.Assert(err, IsNil)
	c.Assert(found, Equals, true)
	c.Assert(t.Name, Equals, "employee")
	c.Assert(t.IsTable, Equals, true)
	c.Assert(t.Columns, HasLen, 4)

	key, ok := t.TryGetColumn("EMPLOYEE_KEY")
	c.Assert(ok, Equals, true)
	c.Assert(key.IsPrimaryKey, Equals, true)
	c.Assert(key.IsIdentity, Equals, true)

	phone, ok := t.TryGetColumn("cell_phone")
	c.Assert(ok, Equals, true)
	c.Assert(phone.IsNullable, Equals, true)

	_, found, err = ds.GetTableOrView(ctx, "ghost")
	c.Assert(err, IsNil)
	c.Assert(found, Equals, false)

	col, found, err := ds.TryGetColumn(ctx, "setting", "value")
	c.Assert(err, IsNil)
	c.Assert(found, Equals, true)
	c.Assert(col.Name, Equals, "value")
}

func (s *PackageSuite) TestUnknownTableIsMappingError(c *C) {
	ds := setupDS(c)

	var emp Employee
	err := ds.From("ghost").One(context.Background(), &emp)
	c.Assert(err, ErrorMatches, `table or view "ghost" not found`)

	var mapping *sqlchain.MappingError
	c.Assert(errors.As(err, &mapping), Equals, true)
}

func (s *PackageSuite) TestInsertReadBack(c *C) {
	ds := setupDS(c)
	ctx := context.Background()

	emp := Employee{FirstName: "Tom", LastName: "Jones"}
	var got Employee
	err := ds.Insert("employee", emp).Into(ctx, &got)
	c.Assert(err, IsNil)

	// The generated identity came back with the row.
	c.Assert(got.EmployeeKey > 0, Equals, true)
	c.Assert(got.FirstName, Equals, "Tom")
	c.Assert(got.CellPhone, IsNil)
}

func (s *PackageSuite) TestOneAndAll(c *C) {
	ds := setupDS(c, insertEmployees("Archer", "Baker", "Cooper")...)
	ctx := context.Background()

	var emp Employee
	err := ds.From("employee").
		WithFilterValue(map[string]any{"last_name": "Baker"}).
		One(ctx, &emp)
	c.Assert(err, IsNil)
	c.Assert(emp.LastName, Equals, "Baker")

	err = ds.From("employee").
		WithFilterValue(map[string]any{"last_name": "Zimmer"}).
		One(ctx, &emp)
	c.Assert(errors.Is(err, sqlchain.ErrNoRows), Equals, true)

	var all []Employee
	err = ds.From("employee").WithSort("last_name", false).All(ctx, &all)
	c.Assert(err, IsNil)
	c.Assert(all, HasLen, 3)
	c.Assert(all[0].LastName, Equals, "Archer")
	c.Assert(all[2].LastName, Equals, "Cooper")
}

func (s *PackageSuite) TestPaging(c *C) {
	ds := setupDS(c, insertEmployees("Archer", "Baker", "Cooper", "Draper", "Fisher", "Glover", "Hunter")...)

	var page []Employee
	err := ds.From("employee").
		WithSort("last_name", false).
		WithSkip(2).
		WithTake(3).
		All(context.Background(), &page)
	c.Assert(err, IsNil)
	c.Assert(page, HasLen, 3)
	c.Assert(page[0].LastName, Equals, "Cooper")
	c.Assert(page[1].LastName, Equals, "Draper")
	c.Assert(page[2].LastName, Equals, "Fisher")
}

func (s *PackageSuite) TestRandomSample(c *C) {
	ds := setupDS(c, insertEmployees("Archer", "Baker", "Cooper", "Draper")...)

	var sample []Employee
	err := ds.From("employee").
		WithTake(2).
		WithLimitStrategy(sqlchain.LimitRandomSample).
		All(context.Background(), &sample)
	c.Assert(err, IsNil)
	c.Assert(sample, HasLen, 2)

	// Seeded sampling is a capability sqlite does not have.
	c.Assert(ds.SupportsSeededSampling(), Equals, false)
	c.Assert(ds.SupportsTopN(), Equals, false)
	err = ds.From("employee").WithSeed(42).All(context.Background(), &sample)
	c.Assert(err, ErrorMatches, "sqlite3 does not support seeded random sampling")
}

func (s *PackageSuite) TestStrictAndLenient(c *C) {
	ds := setupDS(c, insertEmployees("Archer")...)
	ctx := context.Background()

	type Extended struct {
		LastName string `db:"last_name"`
		ShoeSize int    `db:"shoe_size"`
	}

	// Reading a type with an unmapped column is a strict error.
	var ext []Extended
	err := ds.From("employee").All(ctx, &ext)
	c.Assert(err, ErrorMatches, `column "shoe_size" not found on employee`)

	// Lenient mode binds what it can.
	err = ds.From("employee").Lenient().All(ctx, &ext)
	c.Assert(err, IsNil)
	c.Assert(ext, HasLen, 1)
	c.Assert(ext[0].LastName, Equals, "Archer")
	c.Assert(ext[0].ShoeSize, Equals, 0)

	// Writing a type with an unmapped property is a strict error too.
	err = ds.Insert("employee", Extended{LastName: "Baker", ShoeSize: 43}).Run(ctx)
	c.Assert(err, ErrorMatches, `no column on employee for property "ShoeSize" of Extended`)
}

func (s *PackageSuite) TestUpdate(c *C) {
	ds := setupDS(c)
	ctx := context.Background()

	var emp Employee
	err := ds.Insert("employee", Employee{FirstName: "Tom", LastName: "Jones"}).Into(ctx, &emp)
	c.Assert(err, IsNil)

	// Addressed by primary key, returning the new values.
	emp.FirstName = "Thomas"
	var updated Employee
	err = ds.Update("employee", emp).IntoNew(ctx, &updated)
	c.Assert(err, IsNil)
	c.Assert(updated.EmployeeKey, Equals, emp.EmployeeKey)
	c.Assert(updated.FirstName, Equals, "Thomas")

	// Old values are read before the write.
	emp.FirstName = "Tommy"
	var old Employee
	err = ds.Update("employee", emp).IntoOld(ctx, &old)
	c.Assert(err, IsNil)
	c.Assert(old.FirstName, Equals, "Thomas")

	var after Employee
	err = ds.From("employee").WithFilterValue(map[string]any{"employee_key": emp.EmployeeKey}).One(ctx, &after)
	c.Assert(err, IsNil)
	c.Assert(after.FirstName, Equals, "Tommy")
}

func (s *PackageSuite) TestUpdateExpectedRows(c *C) {
	ds := setupDS(c, insertEmployees("Archer", "Baker")...)
	ctx := context.Background()

	err := ds.Update("employee", Employee{FirstName: "Renamed", LastName: "Archer"}).
		WithRawSet("first_name = 'Renamed'").
		WithFilterValue(map[string]any{"last_name": "Missing"}).
		WithExpectedRows(1).
		Run(ctx)

	var mismatch *sqlchain.RowCountMismatchError
	c.Assert(errors.As(err, &mismatch), Equals, true)
	c.Assert(mismatch.Expected, Equals, int64(1))
	c.Assert(mismatch.Actual, Equals, int64(0))

	// The check also holds when read-back collapses into the write
	// statement: both employees share a first name, so the filter matches
	// two rows where one was expected.
	var renamed Employee
	err = ds.Update("employee", Employee{FirstName: "Renamed", LastName: "Archer"}).
		WithRawSet("last_name = 'Renamed'").
		WithRawFilter("first_name = ?", "Test").
		WithExpectedRows(1).
		IntoNew(ctx, &renamed)
	c.Assert(errors.As(err, &mismatch), Equals, true)
	c.Assert(mismatch.Expected, Equals, int64(1))
	c.Assert(mismatch.Actual, Equals, int64(2))
}

func (s *PackageSuite) TestDelete(c *C) {
	ds := setupDS(c, insertEmployees("Archer", "Baker", "Cooper")...)
	ctx := context.Background()

	// A filterless delete must opt in.
	err := ds.DeleteFrom("employee").Run(ctx)
	c.Assert(err, ErrorMatches, "cannot delete from employee without a filter; use All to delete every row")

	var deleted []Employee
	err = ds.DeleteFrom("employee").
		WithFilterValue(map[string]any{"last_name": "Baker"}).
		Into(ctx, &deleted)
	c.Assert(err, IsNil)
	c.Assert(deleted, HasLen, 1)
	c.Assert(deleted[0].LastName, Equals, "Baker")

	err = ds.DeleteFrom("employee").All().WithExpectedRows(2).Run(ctx)
	c.Assert(err, IsNil)

	var rest []Employee
	err = ds.From("employee").All(ctx, &rest)
	c.Assert(err, IsNil)
	c.Assert(rest, HasLen, 0)
}

func (s *PackageSuite) TestUpsert(c *C) {
	ds := setupDS(c)
	ctx := context.Background()

	err := ds.Upsert("setting", Setting{Name: "volume", Value: "7"}).Run(ctx)
	c.Assert(err, IsNil)

	var got Setting
	err = ds.Upsert("setting", Setting{Name: "volume", Value: "11"}).Into(ctx, &got)
	c.Assert(err, IsNil)
	c.Assert(got.Value, Equals, "11")

	var all []Setting
	err = ds.From("setting").All(ctx, &all)
	c.Assert(err, IsNil)
	c.Assert(all, HasLen, 1)
}

func (s *PackageSuite) TestRawFilter(c *C) {
	ds := setupDS(c, insertEmployees("Archer", "Hunter")...)

	var long []Employee
	err := ds.From("employee").
		WithRawFilter("length(last_name) > ?", 5).
		All(context.Background(), &long)
	c.Assert(err, IsNil)
	c.Assert(long, HasLen, 2)
}

func (s *PackageSuite) TestTransactionCommit(c *C) {
	ds := setupDS(c)
	ctx := context.Background()

	tx, err := ds.Begin(ctx, nil)
	c.Assert(err, IsNil)

	err = tx.Insert("employee", Employee{FirstName: "Tom", LastName: "Jones"}).Run(ctx)
	c.Assert(err, IsNil)
	err = tx.Update("employee", Employee{FirstName: "Tom", LastName: "Smith"}).
		WithFilterValue(map[string]any{"last_name": "Jones"}).
		Run(ctx)
	c.Assert(err, IsNil)

	// Reads on the same context see the uncommitted writes.
	var inTx Employee
	err = tx.From("employee").WithFilterValue(map[string]any{"last_name": "Smith"}).One(ctx, &inTx)
	c.Assert(err, IsNil)

	c.Assert(tx.Commit(), IsNil)

	var emp Employee
	err = ds.From("employee").WithFilterValue(map[string]any{"last_name": "Smith"}).One(ctx, &emp)
	c.Assert(err, IsNil)
	c.Assert(emp.FirstName, Equals, "Tom")
}

func (s *PackageSuite) TestTransactionRollback(c *C) {
	ds := setupDS(c)
	ctx := context.Background()

	tx, err := ds.Begin(ctx, nil)
	c.Assert(err, IsNil)
	err = tx.Insert("employee", Employee{FirstName: "Tom", LastName: "Jones"}).Run(ctx)
	c.Assert(err, IsNil)
	c.Assert(tx.Rollback(), IsNil)

	var all []Employee
	err = ds.From("employee").All(ctx, &all)
	c.Assert(err, IsNil)
	c.Assert(all, HasLen, 0)
}

func (s *PackageSuite) TestTransactionFinished(c *C) {
	ds := setupDS(c)
	ctx := context.Background()

	tx, err := ds.Begin(ctx, nil)
	c.Assert(err, IsNil)
	c.Assert(tx.Commit(), IsNil)

	// A finished context rejects everything, including a second finish.
	c.Assert(tx.Commit(), Equals, sqlchain.ErrContextDone)
	c.Assert(tx.Rollback(), Equals, sqlchain.ErrContextDone)

	err = tx.Insert("employee", Employee{FirstName: "Tom", LastName: "Jones"}).Run(ctx)
	c.Assert(errors.Is(err, sqlchain.ErrContextDone), Equals, true)

	var emp Employee
	err = tx.From("employee").One(ctx, &emp)
	c.Assert(errors.Is(err, sqlchain.ErrContextDone), Equals, true)
}

func (s *PackageSuite) TestCanceledContext(c *C) {
	ds := setupDS(c, insertEmployees("Archer")...)

	// Warm the metadata cache so cancellation hits execution, not discovery.
	_, _, err := ds.GetTableOrView(context.Background(), "employee")
	c.Assert(err, IsNil)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	var all []Employee
	err = ds.From("employee").All(ctx, &all)
	c.Assert(err, ErrorMatches, "operation canceled: context canceled")
	c.Assert(errors.Is(err, context.Canceled), Equals, true)
}
