package server

import (
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
)

const firmwareField = "firmware"

var errEmptyImage = errors.New("ota: uploaded image is empty")

func executable() (string, error) {
	p, err := os.Executable()
	if err != nil {
		return "", err
	}
	return filepath.EvalSymlinks(p)
}

// handleUpdate replaces the running binary with an uploaded one. The reply
// reports the outcome, and the process restarts either way.
func (s *Server) handleUpdate(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	n, err := s.receiveFirmware(r)
	w.Header().Set("Content-Type", "text/plain")
	if err != nil {
		log.WithError(err).Error("[ota] update failed")
		w.WriteHeader(http.StatusInternalServerError)
		io.WriteString(w, "Update failed!")
	} else {
		log.WithField("bytes", n).Info("[ota] update installed, restarting")
		io.WriteString(w, "Update successful! The display will restart.")
	}
	s.restartSoon()
}

func (s *Server) receiveFirmware(r *http.Request) (int64, error) {
	mr, err := r.MultipartReader()
	if err != nil {
		return 0, errors.Wrap(err, "ota: not a multipart upload")
	}
	for {
		part, err := mr.NextPart()
		if err == io.EOF {
			return 0, errors.Errorf("ota: no %q field in upload", firmwareField)
		}
		if err != nil {
			return 0, errors.Wrap(err, "ota: read upload")
		}
		if part.FormName() != firmwareField {
			part.Close()
			continue
		}
		log.WithField("file", part.FileName()).Info("[ota] receiving image")
		n, err := s.install(part)
		part.Close()
		return n, err
	}
}

// install streams the image next to the running binary and renames it into
// place once it is fully on disk.
func (s *Server) install(part *multipart.Part) (int64, error) {
	exe, err := s.exePath()
	if err != nil {
		return 0, errors.Wrap(err, "ota: locate executable")
	}
	tmp := exe + ".new"

	f, err := os.OpenFile(tmp, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0755)
	if err != nil {
		return 0, errors.Wrap(err, "ota: create image")
	}
	n, err := io.Copy(f, part)
	if err == nil && n == 0 {
		err = errEmptyImage
	}
	if err == nil {
		err = f.Sync()
	}
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		os.Remove(tmp)
		return n, errors.Wrap(err, "ota: write image")
	}
	if err := os.Chmod(tmp, 0755); err != nil {
		os.Remove(tmp)
		return n, errors.Wrap(err, "ota: chmod image")
	}
	if err := os.Rename(tmp, exe); err != nil {
		os.Remove(tmp)
		return n, errors.Wrap(err, "ota: replace executable")
	}
	return n, nil
}
