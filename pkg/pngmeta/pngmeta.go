// Package pngmeta reads generation metadata embedded in image files.
//
// PNG files produced by node-graph image generators carry their full prompt
// graph in tEXt/zTXt/iTXt chunks under the "prompt" and "workflow" keys,
// alongside optional "Rating" and "Tags" entries. The package walks the
// chunk stream directly; the image pixels are never decoded.
package pngmeta

import (
	"bytes"
	"compress/zlib"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"image"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"

	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/webp"
)

var pngSignature = []byte{0x89, 'P', 'N', 'G', '\r', '\n', 0x1a, '\n'}

// maxChunkSize rejects pathological chunk lengths before allocating.
const maxChunkSize = 64 << 20

// Extract reads all recoverable metadata from the image at path. The result
// always carries a "fileinfo" section; PNG text chunks and derived
// structured prompts are added when present.
func Extract(path string) (map[string]any, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return nil, err
	}

	meta := map[string]any{}

	sig := make([]byte, 8)
	if _, err := io.ReadFull(f, sig); err != nil {
		return nil, fmt.Errorf("read signature: %w", err)
	}
	if _, err := f.Seek(0, io.SeekStart); err != nil {
		return nil, err
	}

	var width, height int
	var format string

	if bytes.Equal(sig, pngSignature) {
		format = "png"
		chunks, w, h, err := readChunks(f)
		if err != nil {
			return nil, err
		}
		width, height = w, h
		for key, value := range chunks {
			assignChunk(meta, key, value)
		}
	} else {
		cfg, fmtName, err := image.DecodeConfig(f)
		if err != nil {
			return nil, fmt.Errorf("decode config: %w", err)
		}
		format = fmtName
		width, height = cfg.Width, cfg.Height
	}

	meta["fileinfo"] = map[string]any{
		"filename":   filepath.Base(path),
		"width":      width,
		"height":     height,
		"format":     format,
		"mimetype":   "image/" + format,
		"resolution": fmt.Sprintf("%dx%d", width, height),
		"date":       info.ModTime().Format("2006-01-02 15:04:05"),
		"size":       humanSize(info.Size()),
	}

	prompt, _ := meta["prompt"].(map[string]any)
	workflow, _ := meta["workflow"].(map[string]any)
	if prompt != nil || workflow != nil {
		meta["structured_prompts"] = structurePrompts(prompt, workflow)
	}

	return meta, nil
}

// assignChunk folds one decoded text chunk into the metadata document,
// applying the per-key conventions.
func assignChunk(meta map[string]any, key, value string) {
	switch key {
	case "workflow", "prompt":
		var doc any
		if err := json.Unmarshal([]byte(value), &doc); err == nil {
			meta[key] = doc
		} else {
			meta[key] = value
		}
	case "Rating":
		n, err := strconv.Atoi(strings.TrimSpace(value))
		if err != nil {
			n = 0
		}
		meta["rating"] = n
	case "Tags":
		meta["tags"] = parseTags(value)
	default:
		var doc any
		if err := json.Unmarshal([]byte(value), &doc); err == nil {
			meta[key] = doc
		} else {
			meta[key] = value
		}
	}
}

// parseTags accepts either a JSON array or a comma-separated string.
func parseTags(value string) []string {
	var arr []string
	if err := json.Unmarshal([]byte(value), &arr); err == nil {
		return arr
	}
	out := []string{}
	for _, t := range strings.Split(value, ",") {
		if t = strings.TrimSpace(t); t != "" {
			out = append(out, t)
		}
	}
	return out
}

// readChunks walks the PNG chunk stream collecting text chunks and the IHDR
// dimensions. Pixel data is skipped, not decoded.
func readChunks(r io.ReadSeeker) (map[string]string, int, int, error) {
	if _, err := r.Seek(8, io.SeekStart); err != nil {
		return nil, 0, 0, err
	}

	texts := map[string]string{}
	var width, height int
	header := make([]byte, 8)

	for {
		if _, err := io.ReadFull(r, header); err != nil {
			if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
				break
			}
			return nil, 0, 0, err
		}
		length := binary.BigEndian.Uint32(header[:4])
		chunkType := string(header[4:8])
		if length > maxChunkSize {
			return nil, 0, 0, fmt.Errorf("chunk %s too large: %d", chunkType, length)
		}

		switch chunkType {
		case "IHDR":
			data := make([]byte, length)
			if _, err := io.ReadFull(r, data); err != nil {
				return nil, 0, 0, err
			}
			if length >= 8 {
				width = int(binary.BigEndian.Uint32(data[0:4]))
				height = int(binary.BigEndian.Uint32(data[4:8]))
			}
		case "tEXt", "zTXt", "iTXt":
			data := make([]byte, length)
			if _, err := io.ReadFull(r, data); err != nil {
				return nil, 0, 0, err
			}
			if key, value, err := decodeTextChunk(chunkType, data); err == nil && key != "" {
				if _, dup := texts[key]; !dup {
					texts[key] = value
				}
			}
		case "IEND":
			return texts, width, height, nil
		default:
			if _, err := r.Seek(int64(length), io.SeekCurrent); err != nil {
				return nil, 0, 0, err
			}
		}

		// Skip the CRC.
		if _, err := r.Seek(4, io.SeekCurrent); err != nil {
			return nil, 0, 0, err
		}
	}
	return texts, width, height, nil
}

func decodeTextChunk(chunkType string, data []byte) (string, string, error) {
	switch chunkType {
	case "tEXt":
		key, rest, ok := bytes.Cut(data, []byte{0})
		if !ok {
			return "", "", errors.New("malformed tEXt chunk")
		}
		return string(key), string(rest), nil

	case "zTXt":
		key, rest, ok := bytes.Cut(data, []byte{0})
		if !ok || len(rest) < 1 {
			return "", "", errors.New("malformed zTXt chunk")
		}
		// rest[0] is the compression method; only deflate (0) exists.
		value, err := inflate(rest[1:])
		if err != nil {
			return "", "", err
		}
		return string(key), value, nil

	case "iTXt":
		key, rest, ok := bytes.Cut(data, []byte{0})
		if !ok || len(rest) < 2 {
			return "", "", errors.New("malformed iTXt chunk")
		}
		compressed := rest[0] == 1
		rest = rest[2:]
		// Skip language tag and translated keyword.
		for i := 0; i < 2; i++ {
			_, tail, ok := bytes.Cut(rest, []byte{0})
			if !ok {
				return "", "", errors.New("malformed iTXt chunk")
			}
			rest = tail
		}
		if compressed {
			value, err := inflate(rest)
			if err != nil {
				return "", "", err
			}
			return string(key), value, nil
		}
		return string(key), string(rest), nil
	}
	return "", "", fmt.Errorf("not a text chunk: %s", chunkType)
}

func inflate(data []byte) (string, error) {
	zr, err := zlib.NewReader(bytes.NewReader(data))
	if err != nil {
		return "", err
	}
	defer zr.Close()
	out, err := io.ReadAll(io.LimitReader(zr, maxChunkSize))
	if err != nil {
		return "", err
	}
	return string(out), nil
}

func humanSize(n int64) string {
	switch {
	case n < 1024:
		return fmt.Sprintf("%d bytes", n)
	case n < 1024*1024:
		return fmt.Sprintf("%.2f KB", float64(n)/1024)
	default:
		return fmt.Sprintf("%.2f MB", float64(n)/(1024*1024))
	}
}
