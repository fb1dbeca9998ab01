package vbus

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRegisterAndRead(t *testing.T) {
	tree := NewTree()

	err := tree.Register("/Serial", "1234", false, nil)
	assert.NoError(t, err)
	err = tree.Register("/State", 0, true, nil)
	assert.NoError(t, err)

	err = tree.PublishTree("com.victronenergy.switch.virtual_1234")
	assert.NoError(t, err)
	assert.Equal(t, "com.victronenergy.switch.virtual_1234", tree.ServiceName())

	value, ok := tree.Read("/Serial")
	assert.True(t, ok)
	assert.Equal(t, "1234", value)

	_, ok = tree.Read("/Nope")
	assert.False(t, ok)
}

func TestRegisterAfterPublish(t *testing.T) {
	tree := NewTree()

	assert.NoError(t, tree.Register("/State", 0, true, nil))
	assert.NoError(t, tree.PublishTree("svc"))

	err := tree.Register("/Late", 0, false, nil)
	assert.ErrorIs(t, err, ErrTreePublished)

	err = tree.PublishTree("svc2")
	assert.ErrorIs(t, err, ErrTreePublished)
}

func TestRegisterDuplicatePath(t *testing.T) {
	tree := NewTree()

	assert.NoError(t, tree.Register("/State", 0, true, nil))
	assert.Error(t, tree.Register("/State", 1, true, nil))
}

func TestWriteNotifiesObserver(t *testing.T) {
	tree := NewTree()
	assert.NoError(t, tree.Register("/State", 0, true, nil))
	assert.NoError(t, tree.PublishTree("svc"))

	var gotPath string
	var gotValue interface{}
	tree.SetOnValueChanged(func(path string, value interface{}) {
		gotPath = path
		gotValue = value
	})

	assert.NoError(t, tree.Write("/State", 1))
	assert.Equal(t, "/State", gotPath)
	assert.Equal(t, 1, gotValue)

	value, _ := tree.Read("/State")
	assert.Equal(t, 1, value)

	assert.ErrorIs(t, tree.Write("/Nope", 1), ErrUnknownPath)
}

func TestRequestChange(t *testing.T) {
	tree := NewTree()

	accepted := 0
	hook := func(path string, value interface{}) bool {
		if value == 2 {
			return false
		}
		accepted++
		return true
	}

	assert.NoError(t, tree.Register("/State", 0, true, hook))
	assert.NoError(t, tree.Register("/Serial", "1234", false, nil))
	assert.NoError(t, tree.Register("/Type", 1, true, nil))

	// Not observable before publication.
	assert.False(t, tree.RequestChange("/State", 1))

	assert.NoError(t, tree.PublishTree("svc"))

	assert.True(t, tree.RequestChange("/State", 1))
	assert.Equal(t, 1, accepted)
	value, _ := tree.Read("/State")
	assert.Equal(t, 1, value)

	// The hook rejects, value stays.
	assert.False(t, tree.RequestChange("/State", 2))
	value, _ = tree.Read("/State")
	assert.Equal(t, 1, value)

	// Non-writeable and unknown paths are rejected outright.
	assert.False(t, tree.RequestChange("/Serial", "x"))
	assert.False(t, tree.RequestChange("/Nope", 1))

	// Writeable node without a hook accepts.
	assert.True(t, tree.RequestChange("/Type", 3))
	value, _ = tree.Read("/Type")
	assert.Equal(t, 3, value)
}
