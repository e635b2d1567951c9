package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/zsiec/ccx"

	"m7s.live/fmp4/pkg"
	"m7s.live/fmp4/pkg/caption"
	"m7s.live/fmp4/pkg/codec"
	"m7s.live/fmp4/pkg/config"
	"m7s.live/fmp4/pkg/fmp4"
	"m7s.live/fmp4/pkg/util"
)

type result struct {
	path     string
	rec      fmp4.Recorder
	captions []*ccx.CaptionFrame
}

func demuxFile(ctx context.Context, path string, cfg config.Demux, logger *slog.Logger) (*result, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	in, err := util.NewSeekerInput(f)
	if err != nil {
		return nil, err
	}
	if ok, err := fmp4.Sniff(in); err != nil {
		return nil, fmt.Errorf("sniff: %w", err)
	} else if !ok {
		logger.Warn("not recognised as fragmented mp4, demuxing anyway")
	}

	r := &result{path: path}
	demuxOpts := []fmp4.Option{fmp4.WithConfig(cfg), fmp4.WithLogger(logger)}
	var captions *caption.Decoder
	if opts.captions {
		captions = caption.NewDecoder(logger, func(frame *ccx.CaptionFrame) {
			r.captions = append(r.captions, frame)
		})
		demuxOpts = append(demuxOpts, fmp4.WithCaptionSink(captions))
	}
	d := fmp4.New(&r.rec, demuxOpts...)
	defer d.Release()

	var pos fmp4.PositionHolder
	lastSkip := int64(-1)
	for {
		if err = ctx.Err(); err != nil {
			return nil, err
		}
		res, err := d.Read(in, &pos)
		switch {
		case errors.Is(err, pkg.ErrUnsupportedFeature) && in.Position() != lastSkip:
			// the offending box was skipped
			logger.Warn("skipped", "error", err)
			lastSkip = in.Position()
			continue
		case err != nil:
			return nil, err
		}
		switch res {
		case fmp4.ResultSeek:
			logger.Debug("seek", "position", pos.Position)
			if err = in.ResetTo(pos.Position); err != nil {
				return nil, err
			}
		case fmp4.ResultEndOfInput:
			if captions != nil {
				captions.Flush()
			}
			return r, nil
		}
	}
}

func (r *result) print(w io.Writer, samples *slog.Logger) {
	fmt.Fprintf(w, "== %s\n", r.path)
	for _, t := range r.rec.Tracks {
		var codecs string
		if f := t.LastFormat(); f != nil {
			codecs = f.String()
		}
		fmt.Fprintf(w, "track %d %s %s: %d samples\n", t.ID, t.Kind, codecs, len(t.Samples))
	}
	if m := r.rec.LastSeekMap(); m != nil {
		fmt.Fprintf(w, "seek map: seekable=%v duration=%dus", m.IsSeekable(), m.Duration())
		if index, ok := m.(*fmp4.ChunkIndex); ok {
			fmt.Fprintf(w, " chunks=%d", index.Len())
		}
		fmt.Fprintln(w)
	}
	for _, c := range r.captions {
		fmt.Fprintf(w, "caption cc%d %dus %q\n", c.Channel, c.PTS, c.Text)
	}
	if !opts.samples {
		return
	}
	for _, t := range r.rec.Tracks {
		format := t.LastFormat()
		for i := range t.Samples {
			s := &t.Samples[i]
			var detail string
			switch {
			case t.ID == fmp4.EmsgTrackID:
				detail = eventMessage(s.Data)
			case opts.nals:
				detail = nalTypes(format, s)
			}
			if samples != nil {
				samples.Info("sample", "file", r.path, "track", t.ID, "time", s.TimeUs, "flags", s.Flags.String(), "size", len(s.Data), "encrypted", s.Crypto != nil, "detail", detail)
				continue
			}
			if detail != "" {
				fmt.Fprintf(w, "track %d %s %s\n", t.ID, s, detail)
			} else {
				fmt.Fprintf(w, "track %d %s\n", t.ID, s)
			}
		}
	}
}

func eventMessage(data []byte) string {
	m, err := fmp4.DecodeEventMessage(data)
	if err != nil {
		return err.Error()
	}
	return fmt.Sprintf("scheme=%s value=%s id=%d duration=%dms data=%d", m.SchemeIDURI, m.Value, m.ID, m.DurationMs, len(m.MessageData))
}

// nalTypes lists the unit types of a start code delimited sample. Encrypted
// samples lead with their IV and are left out.
func nalTypes(format *fmp4.Format, s *fmp4.RecordedSample) string {
	if format == nil || s.Crypto != nil {
		return ""
	}
	var types []string
	for _, nalu := range codec.SplitAnnexB(s.Data) {
		if len(nalu) == 0 {
			continue
		}
		switch {
		case format.FourCC.IsH264():
			types = append(types, fmt.Sprint(codec.ParseH264NALUType(nalu[0])))
		case format.FourCC.IsH265():
			types = append(types, fmt.Sprint(codec.ParseH265NALUType(nalu[0])))
		default:
			return ""
		}
	}
	if len(types) == 0 {
		return ""
	}
	return "nals=" + strings.Join(types, ",")
}
