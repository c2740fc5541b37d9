package app

import (
	"context"
	"errors"
	"fmt"
	"path"
	"path/filepath"
	"strings"

	"lending-snapshots/internal/config"
	"lending-snapshots/internal/render"
	"lending-snapshots/internal/service"
	"lending-snapshots/internal/snapshot"
	"lending-snapshots/internal/storage"
)

// Export runs one session and writes the tables in every requested format,
// uploading the files to S3 when enabled.
func (a *App) Export(ctx context.Context, opts ExportOptions) error {
	name, network, err := a.resolveNetwork(opts.Network)
	if err != nil {
		return err
	}

	formats := opts.Formats
	if len(formats) == 0 {
		formats = a.Config.Export.Formats
	}
	if len(formats) == 0 {
		return errors.New("at least one export format must be provided")
	}

	dir := opts.Dir
	if dir == "" {
		dir = filepath.Join(a.Config.Export.Dir, sessionDirName(name, opts.Window))
	}

	files, err := a.fileRenderers(dir, formats, a.Config.ResolveMaxPoints(opts.MaxPoints))
	if err != nil {
		return err
	}

	renderers := make([]render.Renderer, 0, len(files))
	if opts.Upload || a.Config.S3.Enabled {
		uploader, err := render.NewS3Uploader(ctx, render.S3Options{
			Bucket:          a.Config.S3.Bucket,
			Region:          a.Config.S3.Region,
			Endpoint:        a.Config.S3.Endpoint,
			AccessKeyID:     a.Config.S3.AccessKeyID,
			SecretAccessKey: a.Config.S3.SecretAccessKey,
			PathStyle:       a.Config.S3.PathStyle,
			Timeout:         a.Config.S3.Timeout,
		})
		if err != nil {
			return err
		}
		prefix := path.Join(a.Config.S3.Prefix, sessionDirName(name, opts.Window))
		for _, f := range files {
			renderers = append(renderers, &render.Publisher{Inner: f, Uploader: uploader, Prefix: prefix, Logger: a.Logger})
		}
	} else {
		for _, f := range files {
			renderers = append(renderers, f)
		}
	}

	var store *storage.Store
	if opts.Persist {
		var closeStore func()
		store, closeStore, err = a.openStore(ctx)
		if err != nil {
			return err
		}
		if store == nil {
			return errors.New("database.dsn 未配置，无法保存会话")
		}
		defer closeStore()
	}

	svc, closeSvc, err := a.newService(name, network, renderers, store)
	if err != nil {
		return err
	}
	defer closeSvc()

	res, err := svc.Run(ctx, opts.Window)
	if err != nil {
		return err
	}

	for _, f := range files {
		for _, file := range f.Files() {
			fmt.Fprintln(a.Out, file)
		}
	}
	a.printSessionFooter(res)
	return nil
}

func (a *App) fileRenderers(dir string, formats []string, maxPoints int) ([]render.FileRenderer, error) {
	var out []render.FileRenderer
	seen := make(map[string]bool)
	for _, f := range formats {
		format := strings.ToLower(strings.TrimSpace(f))
		if seen[format] {
			continue
		}
		seen[format] = true

		switch format {
		case config.FormatCSV:
			out = append(out, &render.CSVWriter{Dir: dir})
		case config.FormatPNG:
			out = append(out, render.NewChartWriter(render.ChartOptions{
				Dir:       dir,
				Filter:    a.rateFilter(),
				MaxPoints: maxPoints,
				Width:     a.Config.Export.ChartWidth,
				Height:    a.Config.Export.ChartHeight,
			}, a.Logger))
		case config.FormatParquet:
			out = append(out, &render.ParquetWriter{Dir: dir, Compression: a.Config.Export.ParquetCompression})
		default:
			return nil, fmt.Errorf("unknown export format %q", f)
		}
	}
	return out, nil
}

func sessionDirName(network string, w service.Window) string {
	return fmt.Sprintf("%s_%s_%s", network, w.From.Format(snapshot.DayLayout), w.To.Format(snapshot.DayLayout))
}
