package messagequeue

import "testing"

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		subject string
		data    string
		wantErr bool
	}{
		{name: "valid notify", subject: SubjectInstallationsNotify, data: `{"topic":"refreshData"}`},
		{name: "notify with origin", subject: SubjectInstallationsNotify, data: `{"topic":"refreshData","origin":"admin"}`},
		{name: "notify missing topic", subject: SubjectInstallationsNotify, data: `{"origin":"admin"}`, wantErr: true},
		{name: "notify wrong type", subject: SubjectInstallationsNotify, data: `{"topic":42}`, wantErr: true},
		{name: "invalid json", subject: SubjectInstallationsNotify, data: `not-json`, wantErr: true},
		{name: "unknown subject any json", subject: "other.subject", data: `[1,2,3]`},
		{name: "unknown subject invalid json", subject: "other.subject", data: `{`, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := Validate(tt.subject, []byte(tt.data))
			if (err != nil) != tt.wantErr {
				t.Fatalf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}
