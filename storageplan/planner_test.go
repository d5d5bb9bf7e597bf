// Copyright The Authors.  All rights reserved.
// Use of this source code is governed by an Apache2
// license that can be found in the LICENSE file.

package storageplan

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/rdbcore/rdb/schema"
)

const itemSchemaSrc = `
type Item {
  @primary a: int64,
  b: set<Item>,
  c: bytes,
}
export Item data;
`

func TestPlanStability(t *testing.T) {
	s, err := schema.Compile(itemSchemaSrc)
	require.NoError(t, err)

	p1, err := GeneratePlan(s, nil, nil)
	require.NoError(t, err)

	p2, err := GeneratePlan(s, s, p1)
	require.NoError(t, err)

	require.True(t, p1.Equal(p2))
}

func TestPlanKeyPreservationOnAddedField(t *testing.T) {
	oldSchema, err := schema.Compile(itemSchemaSrc)
	require.NoError(t, err)
	oldPlan, err := GeneratePlan(oldSchema, nil, nil)
	require.NoError(t, err)

	newSrc := `
type Item {
  @primary a: int64,
  b: set<Item>,
  c: bytes,
  d: string,
}
export Item data;
`
	newSchema, err := schema.Compile(newSrc)
	require.NoError(t, err)
	newPlan, err := GeneratePlan(newSchema, oldSchema, oldPlan)
	require.NoError(t, err)

	oldData := oldPlan.Exports["data"]
	newData := newPlan.Exports["data"]
	require.Equal(t, oldData.Key.Const, newData.Key.Const)

	oldA, _ := oldData.Child("a")
	newA, _ := newData.Child("a")
	require.Equal(t, oldA.Key.Const, newA.Key.Const)

	oldC, _ := oldData.Child("c")
	newC, _ := newData.Child("c")
	require.Equal(t, oldC.Key.Const, newC.Key.Const)

	// new field d must have a fresh key, not equal to any existing one
	newD, ok := newData.Child("d")
	require.True(t, ok)
	require.NotEqual(t, oldA.Key.Const, newD.Key.Const)
}

func TestPlanRecursiveSharing(t *testing.T) {
	s, err := schema.Compile(itemSchemaSrc)
	require.NoError(t, err)
	plan, err := GeneratePlan(s, nil, nil)
	require.NoError(t, err)

	data := plan.Exports["data"]
	b, ok := data.Child("b")
	require.True(t, ok)
	elem, ok := b.Child(elemSlot)
	require.True(t, ok)
	require.True(t, elem.SubspaceReference)
	require.Equal(t, data.Key.Const, elem.Key.Const)
}

func TestWireRoundTrip(t *testing.T) {
	s, err := schema.Compile(itemSchemaSrc)
	require.NoError(t, err)
	plan, err := GeneratePlan(s, nil, nil)
	require.NoError(t, err)

	bin := Marshal(plan)
	decoded, err := Unmarshal(bin)
	require.NoError(t, err)
	require.True(t, plan.Equal(decoded))

	human := ToHuman(plan)
	fromHuman, err := FromHuman(human)
	require.NoError(t, err)
	require.Equal(t, bin, Marshal(fromHuman))
}
