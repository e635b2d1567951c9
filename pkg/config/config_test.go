package config

import (
	"testing"
)

func TestDefault(t *testing.T) {
	d := Default()
	if d.MaxLeafSize != 1<<31-1 || d.Log.Level != "info" || d.Log.MaxFiles != 7 {
		t.Fatalf("unexpected defaults %+v", d)
	}
	if d.PadOddSizedBoxes {
		t.Error("odd sized box padding on by default")
	}
	if len(d.Flags()) != 0 {
		t.Errorf("flags %v", d.Flags())
	}
}

// TestUserFile 用户配置覆盖默认值
func TestUserFile(t *testing.T) {
	d, c, err := Parse([]byte("mergefragmentedsidx: true\nlog:\n  level: debug\n  maxsize: 1024\n"))
	if err != nil {
		t.Fatal(err)
	}
	if !d.MergeFragmentedSidx || d.Log.Level != "debug" || d.Log.MaxSize != 1024 {
		t.Fatalf("unexpected %+v", d)
	}
	if d.Log.MaxFiles != 7 {
		t.Errorf("untouched default lost: %d", d.Log.MaxFiles)
	}
	if flags := d.Flags(); len(flags) != 1 || flags[0] != "merge-fragmented-sidx" {
		t.Errorf("flags %v", flags)
	}
	m := c.GetMap()
	if m["mergefragmentedsidx"] != true {
		t.Errorf("map %v", m)
	}
	if c.Get("log").Get("level").Desc() == "" {
		t.Error("desc tag")
	}
}

// TestEnv 环境变量优先于默认值
func TestEnv(t *testing.T) {
	t.Setenv("FMP4_WORKAROUNDIGNORETFDT", "true")
	t.Setenv("FMP4_LOG_LEVEL", "warn")
	d, _, err := Parse(nil)
	if err != nil {
		t.Fatal(err)
	}
	if !d.WorkaroundIgnoreTfdt || d.Log.Level != "warn" {
		t.Fatalf("unexpected %+v", d)
	}
}
