package domain_test

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/hankgalt/load-orchestra/pkg/domain"
)

func TestPreparedRecordJSONKeepsIntegers(t *testing.T) {
	in := domain.PreparedRecord{
		"Big":    int64(9007199254740993),
		"Neg":    int64(-42),
		"Amount": 12.5,
		"Huge":   1e300,
		"Name":   "Acme",
		"Active": true,
		"Empty":  nil,
		"Ref":    map[string]any{"Code__c": "A-1", "Seq": int64(7)},
	}
	b, err := json.Marshal(in)
	require.NoError(t, err)

	var out domain.PreparedRecord
	require.NoError(t, json.Unmarshal(b, &out))
	require.Equal(t, in, out)

	var batch struct {
		Records []domain.PreparedRecord `json:"records"`
	}
	require.NoError(t, json.Unmarshal([]byte(`{"records":[{"Id":123456789012345678},null]}`), &batch))
	require.Len(t, batch.Records, 2)
	require.Equal(t, int64(123456789012345678), batch.Records[0]["Id"])
	require.Nil(t, batch.Records[1])

	require.Error(t, json.Unmarshal([]byte(`[1,2]`), &out))
}
