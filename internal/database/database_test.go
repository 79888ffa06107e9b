package database

import "testing"

func TestConfigDSN(t *testing.T) {
	tests := []struct {
		name string
		cfg  Config
		want string
	}{
		{
			name: "url wins",
			cfg:  Config{URL: "postgres://u:p@db:5432/rps", Host: "ignored"},
			want: "postgres://u:p@db:5432/rps",
		},
		{
			name: "fields",
			cfg:  Config{Host: "localhost", Port: 5432, User: "postgres", Password: "secret", DBName: "rps_client"},
			want: "host=localhost port=5432 user=postgres password=secret dbname=rps_client sslmode=disable",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.cfg.DSN(); got != tt.want {
				t.Fatalf("DSN() = %q, want %q", got, tt.want)
			}
		})
	}
}
