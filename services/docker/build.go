package docker

import (
	"archive/tar"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/containerd/errdefs"
	"github.com/ezenkico/deploy-commander/sequencer/models"
	"github.com/ezenkico/deploy-commander/sequencer/services"

	"github.com/moby/moby/client"
	"github.com/moby/patternmatcher"
	"github.com/moby/patternmatcher/ignorefile"
)

// PrepareImage builds the service image from its context, or pulls the
// configured image when it is not present locally.
func (p *DockerPlatform) PrepareImage(ctx context.Context, service models.ServiceDescriptor) (string, error) {
	if service.Build != nil {
		return p.buildImage(ctx, service)
	}

	if service.Image == "" {
		return "", fmt.Errorf("service %q has neither build nor image", service.Name)
	}

	_, err := p.client.ImageInspect(ctx, service.Image)
	if err == nil {
		return service.Image, nil
	}
	if !errdefs.IsNotFound(err) {
		return "", fmt.Errorf("inspect image %q: %w", service.Image, err)
	}

	p.logger.Info().Str("service", service.Name).Str("image", service.Image).Msg("pulling image")
	resp, err := p.client.ImagePull(ctx, service.Image, client.ImagePullOptions{})
	if err != nil {
		return "", fmt.Errorf("pull image %q: %w", service.Image, err)
	}
	defer resp.Close()

	if err := resp.Wait(ctx); err != nil {
		return "", fmt.Errorf("pull image %q: %w", service.Image, err)
	}

	return service.Image, nil
}

func imageTag(project, service string) string {
	return services.DockerServiceName(project, service) + ":latest"
}

func (p *DockerPlatform) buildImage(ctx context.Context, service models.ServiceDescriptor) (string, error) {
	tag := imageTag(p.config.Project, service.Name)

	dockerfile := service.Build.Dockerfile
	if dockerfile == "" {
		dockerfile = "Dockerfile"
	}

	buildCtx, err := tarBuildContext(service.Build.Context, dockerfile)
	if err != nil {
		return "", fmt.Errorf("build context for %q: %w", service.Name, err)
	}
	defer buildCtx.Close()

	args := make(map[string]*string, len(service.Build.Args))
	for k, v := range service.Build.Args {
		args[k] = &v
	}

	p.logger.Info().Str("service", service.Name).Str("tag", tag).Str("context", service.Build.Context).Msg("building image")
	resp, err := p.client.ImageBuild(ctx, buildCtx, client.ImageBuildOptions{
		Tags:        []string{tag},
		Dockerfile:  dockerfile,
		BuildArgs:   args,
		Remove:      true,
		ForceRemove: true,
		Labels:      p.labels(map[string]string{services.LabelService: service.Name}),
	})
	if err != nil {
		return "", fmt.Errorf("build image %q: %w", tag, err)
	}
	defer resp.Body.Close()

	logLine := func(line string) {
		p.logger.Debug().Str("service", service.Name).Msg(line)
	}
	if err := readBuildOutput(resp.Body, logLine); err != nil {
		return "", fmt.Errorf("build image %q: %w", tag, err)
	}

	return tag, nil
}

type buildMessage struct {
	Stream      string `json:"stream"`
	Error       string `json:"error"`
	ErrorDetail struct {
		Message string `json:"message"`
	} `json:"errorDetail"`
}

// readBuildOutput drains the daemon's JSON progress stream and turns an
// in-stream error message into an error.
func readBuildOutput(r io.Reader, logLine func(string)) error {
	dec := json.NewDecoder(r)
	for {
		var msg buildMessage
		if err := dec.Decode(&msg); err != nil {
			if errors.Is(err, io.EOF) {
				return nil
			}
			return fmt.Errorf("decode build output: %w", err)
		}
		if msg.ErrorDetail.Message != "" {
			return errors.New(msg.ErrorDetail.Message)
		}
		if msg.Error != "" {
			return errors.New(msg.Error)
		}
		if line := strings.TrimSpace(msg.Stream); line != "" && logLine != nil {
			logLine(line)
		}
	}
}

// tarBuildContext streams dir as a tar archive, leaving out .git and
// whatever .dockerignore excludes. The Dockerfile and .dockerignore are
// always sent, as the daemon needs them.
func tarBuildContext(dir, dockerfile string) (io.ReadCloser, error) {
	info, err := os.Stat(dir)
	if err != nil {
		return nil, err
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("%q is not a directory", dir)
	}

	excludes, err := readDockerignore(dir)
	if err != nil {
		return nil, err
	}
	pm, err := patternmatcher.New(append([]string{".git"}, excludes...))
	if err != nil {
		return nil, fmt.Errorf("parse .dockerignore: %w", err)
	}

	pr, pw := io.Pipe()
	go func() {
		pw.CloseWithError(writeBuildContext(pw, dir, filepath.ToSlash(filepath.Clean(dockerfile)), pm))
	}()
	return pr, nil
}

func readDockerignore(dir string) ([]string, error) {
	f, err := os.Open(filepath.Join(dir, ".dockerignore"))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, err
	}
	defer f.Close()

	patterns, err := ignorefile.ReadAll(f)
	if err != nil {
		return nil, fmt.Errorf("read .dockerignore: %w", err)
	}
	return patterns, nil
}

func writeBuildContext(w io.Writer, dir, dockerfile string, pm *patternmatcher.PatternMatcher) error {
	tw := tar.NewWriter(w)

	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		rel, err := filepath.Rel(dir, path)
		if err != nil {
			return err
		}
		if rel == "." {
			return nil
		}
		rel = filepath.ToSlash(rel)

		if rel != dockerfile && rel != ".dockerignore" {
			skip, err := pm.MatchesOrParentMatches(rel)
			if err != nil {
				return err
			}
			if skip {
				// With "!" patterns a file below an excluded dir may come back.
				if d.IsDir() && !pm.Exclusions() {
					return filepath.SkipDir
				}
				return nil
			}
		}

		fi, err := d.Info()
		if err != nil {
			return err
		}

		link := ""
		if fi.Mode()&fs.ModeSymlink != 0 {
			if link, err = os.Readlink(path); err != nil {
				return err
			}
		}

		hdr, err := tar.FileInfoHeader(fi, link)
		if err != nil {
			return err
		}
		hdr.Name = rel
		if d.IsDir() {
			hdr.Name += "/"
		}
		if err := tw.WriteHeader(hdr); err != nil {
			return err
		}

		if !fi.Mode().IsRegular() {
			return nil
		}
		f, err := os.Open(path)
		if err != nil {
			return err
		}
		defer f.Close()
		_, err = io.Copy(tw, f)
		return err
	})
	if err != nil {
		return err
	}

	return tw.Close()
}
