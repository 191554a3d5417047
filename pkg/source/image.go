package source

import (
	"context"
	"fmt"
	"time"

	"github.com/Robogera/detectdemo/pkg/indexed"
	"gocv.io/x/gocv"
)

// Still image, yields exactly one frame
type Image struct {
	name   string
	data   []byte
	path   string
	img    gocv.Mat
	opened bool
	handed bool
}

func ImageFromBytes(name string, data []byte) *Image {
	return &Image{name: name, data: data}
}

func ImageFromFile(path string) *Image {
	return &Image{name: path, path: path}
}

func (s *Image) Describe() string { return "image " + s.name }

func (s *Image) Open(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	var img gocv.Mat
	if s.path != "" {
		img = gocv.IMRead(s.path, gocv.IMReadColor)
	} else {
		var err error
		img, err = gocv.IMDecode(s.data, gocv.IMReadColor)
		if err != nil {
			return fmt.Errorf("%w: can't decode %s: %w", ERR_SOURCE_UNAVAILABLE, s.name, err)
		}
	}
	if img.Empty() {
		img.Close()
		return fmt.Errorf("%w: %s is not a readable image", ERR_SOURCE_UNAVAILABLE, s.name)
	}
	s.img = img
	s.opened = true
	return nil
}

func (s *Image) Read() ReadResult {
	if !s.opened {
		return errorResult(ERR_NOT_OPEN)
	}
	if s.handed {
		return endResult()
	}
	s.handed = true
	return frameResult(indexed.NewIndexed(0, time.Now(), s.img))
}

func (s *Image) Release() error {
	if s.opened && !s.handed {
		s.opened = false
		return s.img.Close()
	}
	s.opened = false
	return nil
}
