package mqtt

import "testing"

func TestTopicBuilders(t *testing.T) {
	tests := []struct {
		name string
		got  string
		want string
	}{
		{"SensorReading", Topics{}.SensorReading("TD2000-0042"), "scirecount/sensors/TD2000-0042/reading"},
		{"AllSensorReadings", Topics{}.AllSensorReadings(), "scirecount/sensors/+/reading"},
		{"CoreDevices", Topics{}.CoreDevices(), "scirecount/core/devices"},
		{"SystemStatus", Topics{}.SystemStatus(), "scirecount/system/status"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.got != tt.want {
				t.Errorf("got %q, want %q", tt.got, tt.want)
			}
		})
	}
}

func TestSensorIDFromTopic(t *testing.T) {
	tests := []struct {
		topic  string
		wantID string
		wantOK bool
	}{
		{"scirecount/sensors/TD2000-0042/reading", "TD2000-0042", true},
		{"scirecount/sensors/abc/reading", "abc", true},
		{"scirecount/sensors//reading", "", false},
		{"scirecount/sensors/a/b/reading", "", false},
		{"scirecount/sensors/abc/status", "", false},
		{"scirecount/core/devices", "", false},
		{"other/sensors/abc/reading", "", false},
		{"", "", false},
	}
	for _, tt := range tests {
		t.Run(tt.topic, func(t *testing.T) {
			id, ok := SensorIDFromTopic(tt.topic)
			if id != tt.wantID || ok != tt.wantOK {
				t.Errorf("SensorIDFromTopic(%q) = (%q, %v), want (%q, %v)", tt.topic, id, ok, tt.wantID, tt.wantOK)
			}
		})
	}
}

func TestSensorIDFromTopic_RoundTrip(t *testing.T) {
	for _, id := range []string{"X1", "TD2000-0042", "lobby_east"} {
		got, ok := SensorIDFromTopic(Topics{}.SensorReading(id))
		if !ok || got != id {
			t.Errorf("SensorIDFromTopic(SensorReading(%q)) = (%q, %v)", id, got, ok)
		}
	}
}
