package obs

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestInitTracerWithoutEndpointKeepsSpansLocal(t *testing.T) {
	shutdown, err := InitTracer(context.Background(), TracingConfig{ServiceName: "toko-checkout", Exporter: "otlp"})
	require.NoError(t, err)
	require.NoError(t, shutdown(context.Background()))

	_, err = InitTracer(context.Background(), TracingConfig{Exporter: "zipkin"})
	require.Error(t, err)
}

func TestDescribeSQL(t *testing.T) {
	cases := map[string][2]string{
		"INSERT INTO domain_events (topic) VALUES ($1)":        {"INSERT", "domain_events"},
		"insert into webhook_deliveries(event_id) values ($1)": {"INSERT", "webhook_deliveries"},
		"SELECT id FROM domain_events WHERE id = $1":           {"SELECT", "domain_events"},
		"UPDATE \"sessions\" SET version = 2":                  {"UPDATE", "sessions"},
		"BEGIN":                                                {"BEGIN", ""},
	}
	for sql, want := range cases {
		op, table := describeSQL(sql)
		require.Equal(t, want[0], op, sql)
		require.Equal(t, want[1], table, sql)
	}
	op, table := describeSQL("   ")
	require.Empty(t, op)
	require.Empty(t, table)
}
