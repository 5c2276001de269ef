package mcp

import "testing"

func TestValidateServerConfig(t *testing.T) {
	cases := []struct {
		name    string
		cfg     ServerConfig
		wantErr bool
	}{
		{
			name: "clean stdio config",
			cfg: ServerConfig{
				Name:    "filesystem",
				Command: "npx",
				Args:    []string{"-y", "@modelcontextprotocol/server-filesystem", "/tmp"},
				Env:     []string{"MCP_LOG_LEVEL=debug"},
			},
		},
		{
			name: "semicolon in arg",
			cfg: ServerConfig{
				Name:    "bad",
				Command: "npx",
				Args:    []string{"foo; rm -rf /"},
			},
			wantErr: true,
		},
		{
			name: "null byte in arg",
			cfg: ServerConfig{
				Name:    "bad",
				Command: "npx",
				Args:    []string{"foo\x00bar"},
			},
			wantErr: true,
		},
		{
			name: "newline in server name",
			cfg: ServerConfig{
				Name:    "bad\nserver",
				Command: "npx",
			},
			wantErr: true,
		},
		{
			name: "lowercase env key",
			cfg: ServerConfig{
				Name:    "bad",
				Command: "npx",
				Env:     []string{"logLevel=debug"},
			},
			wantErr: true,
		},
		{
			name: "shell metachar in env value",
			cfg: ServerConfig{
				Name:    "bad",
				Command: "npx",
				Env:     []string{"TOKEN=abc`whoami`"},
			},
			wantErr: true,
		},
		{
			name: "too many args",
			cfg: ServerConfig{
				Name:    "bad",
				Command: "npx",
				Args:    make([]string, maxMCPArgs+1),
			},
			wantErr: true,
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := ValidateServerConfig(tc.cfg)
			if tc.wantErr && err == nil {
				t.Fatal("want error, got nil")
			}
			if !tc.wantErr && err != nil {
				t.Fatalf("want no error, got %v", err)
			}
		})
	}
}
