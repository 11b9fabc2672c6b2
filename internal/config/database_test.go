package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson"
)

func TestUniqueIDNumberIndexIgnoresEmptyValues(t *testing.T) {
	model := uniqueIDNumberIndexModel()

	require.NotNil(t, model.Options.Unique)
	assert.True(t, *model.Options.Unique)

	// Admins carry no id_number; the filter must keep them out of the unique
	// constraint or the second admin registration fails on a duplicate key.
	filter, ok := model.Options.PartialFilterExpression.(bson.M)
	require.True(t, ok)
	assert.Equal(t, bson.M{"id_number": bson.M{"$gt": ""}}, filter)
}
