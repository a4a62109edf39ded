package models_test

import (
	"testing"

	"github.com/bastionsec/bastion/internal/models"
	"github.com/stretchr/testify/assert"
)

func TestAnomalyTypeVocabulary(t *testing.T) {
	types := []string{
		models.AnomalyImpossibleTravel,
		models.AnomalyTorVPN,
		models.AnomalyNewCountry,
		models.AnomalyNewDevice,
		models.AnomalyUnusualTime,
	}

	assert.Equal(t, []string{
		"impossible_travel",
		"tor_vpn",
		"new_country",
		"new_device",
		"unusual_time",
	}, types)
}

func TestValidAnomalyStatus(t *testing.T) {
	assert.True(t, models.ValidAnomalyStatus(models.AnomalyStatusNew))
	assert.True(t, models.ValidAnomalyStatus(models.AnomalyStatusMarkedSafe))
	assert.True(t, models.ValidAnomalyStatus(models.AnomalyStatusBlocked))
	assert.False(t, models.ValidAnomalyStatus("resolved"))
	assert.False(t, models.ValidAnomalyStatus(""))
}
