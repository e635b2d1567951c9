package config

import (
	"fmt"
	"os"

	"github.com/mcuadros/go-defaults"
	"gopkg.in/yaml.v3"
)

// EnvPrefix prefixes environment variable overrides, e.g. FMP4_MERGEFRAGMENTEDSIDX.
const EnvPrefix = "FMP4"

type Log struct {
	Level    string `default:"info" desc:"日志级别 trace/debug/info/warn/error"`
	Path     string `desc:"日志目录，为空时不写文件"`
	MaxSize  uint64 `default:"104857600" desc:"单个日志文件最大字节数"`
	MaxFiles uint64 `default:"7" desc:"保留的日志文件数量"`
	NoColor  bool   `desc:"禁用控制台颜色"`
}

type Demux struct {
	WorkaroundEveryVideoFrameIsSync     bool `desc:"仅将每个分片的第一个视频帧视为关键帧"`
	WorkaroundIgnoreTfdt                bool `desc:"忽略tfdt，使用累计解码时间"`
	WorkaroundIgnoreEditLists           bool `desc:"忽略编辑列表"`
	MergeFragmentedSidx                 bool `desc:"预扫描并合并所有sidx后再解复用"`
	EnableEmsgTrack                     bool `desc:"输出emsg元数据轨道"`
	ReadWithinGopSampleDependencies     bool `desc:"检测H.264帧依赖关系"`
	ReadWithinGopSampleDependenciesH265 bool `desc:"检测H.265帧依赖关系"`
	// PadOddSizedBoxes skips one byte after every box of odd size. It is off
	// by default: files in the wild are not padded, and skipping a byte there
	// misreads the next box header.
	PadOddSizedBoxes bool   `desc:"奇数大小的box后跳过一个填充字节，默认关闭"`
	MaxLeafSize      uint32 `default:"2147483647" desc:"缓冲叶子box的最大字节数"`
	Log              Log
}

// Default returns a Demux filled from its default tags.
func Default() Demux {
	var d Demux
	defaults.SetDefaults(&d)
	return d
}

// Parse layers user yaml over environment variables and defaults.
func Parse(data []byte) (d Demux, c *Config, err error) {
	d = Default()
	c = &Config{}
	c.Parse(&d, EnvPrefix)
	if len(data) == 0 {
		return
	}
	var userConfig map[string]any
	if err = yaml.Unmarshal(data, &userConfig); err != nil {
		return d, c, fmt.Errorf("parse config: %w", err)
	}
	c.ParseUserFile(userConfig)
	return
}

// Load reads a yaml file; an empty path yields the defaults.
func Load(path string) (Demux, *Config, error) {
	if path == "" {
		return Parse(nil)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return Demux{}, nil, fmt.Errorf("read config: %w", err)
	}
	return Parse(data)
}

// Flags summarises the enabled options for logging.
func (d Demux) Flags() (flags []string) {
	for _, f := range []struct {
		on   bool
		name string
	}{
		{d.WorkaroundEveryVideoFrameIsSync, "every-video-frame-is-sync"},
		{d.WorkaroundIgnoreTfdt, "ignore-tfdt"},
		{d.WorkaroundIgnoreEditLists, "ignore-edit-lists"},
		{d.MergeFragmentedSidx, "merge-fragmented-sidx"},
		{d.EnableEmsgTrack, "emsg-track"},
		{d.ReadWithinGopSampleDependencies, "h264-dependencies"},
		{d.ReadWithinGopSampleDependenciesH265, "h265-dependencies"},
		{d.PadOddSizedBoxes, "pad-odd-sized-boxes"},
	} {
		if f.on {
			flags = append(flags, f.name)
		}
	}
	return
}
