package audio

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"
	"strings"

	goaudio "github.com/go-audio/audio"
	"github.com/go-audio/wav"
	"github.com/hajimehoshi/go-mp3"
	"github.com/mewkiz/flac"
)

// ErrUnsupportedFormat 表示扩展名或编码不在支持范围内。
var ErrUnsupportedFormat = errors.New("不支持的音频格式")

// DecodeError 表示编解码库读取音频失败。
type DecodeError struct {
	Path string
	Err  error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("解码音频 %s 失败: %v", e.Path, e.Err)
}

func (e *DecodeError) Unwrap() error { return e.Err }

// Header 是不解码全部 PCM 就能得到的音频元数据。
type Header struct {
	Format     string // wav, mp3, flac
	Codec      string // 编码描述，如 "PCM_16"
	SampleRate int
	Channels   int
	Frames     int64
}

// Seconds 返回 Frames / SampleRate。
func (h Header) Seconds() float64 {
	if h.SampleRate <= 0 {
		return 0
	}
	return float64(h.Frames) / float64(h.SampleRate)
}

// FormatOf 由文件扩展名得到格式名（小写，不带点）。
func FormatOf(path string) string {
	return strings.TrimPrefix(strings.ToLower(filepath.Ext(path)), ".")
}

// Decode 按扩展名解码音频文件，保留原始采样率和声道布局。
func Decode(path string) (*Stream, error) {
	format := FormatOf(path)
	f, err := os.Open(path)
	if err != nil {
		return nil, &DecodeError{Path: path, Err: err}
	}
	defer f.Close()

	s, err := decodeFrom(f, format)
	if err != nil {
		return nil, &DecodeError{Path: path, Err: err}
	}
	return s, nil
}

// DecodeBytes 解码内存中的音频数据，format 为 wav、mp3 或 flac。
func DecodeBytes(data []byte, format string) (*Stream, error) {
	s, err := decodeFrom(bytes.NewReader(data), strings.ToLower(format))
	if err != nil {
		return nil, &DecodeError{Path: "<" + format + " buffer>", Err: err}
	}
	return s, nil
}

func decodeFrom(r io.ReadSeeker, format string) (*Stream, error) {
	var (
		s   *Stream
		err error
	)
	switch format {
	case "wav":
		s, err = decodeWAV(r)
	case "mp3":
		s, err = decodeMP3(r)
	case "flac":
		s, err = decodeFLAC(r)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedFormat, format)
	}
	if err != nil {
		return nil, err
	}
	if err := s.Validate(); err != nil {
		return nil, err
	}
	return s, nil
}

// WAV fmt 块的编码标签
const (
	wavFormatPCM   = 1
	wavFormatFloat = 3
)

// checkWAVFormat 只接受整数 PCM 和 32/64 位 IEEE 浮点，Probe 和 Decode 共用。
func checkWAVFormat(d *wav.Decoder) error {
	switch d.WavAudioFormat {
	case wavFormatPCM:
		return nil
	case wavFormatFloat:
		if d.BitDepth == 32 || d.BitDepth == 64 {
			return nil
		}
		return fmt.Errorf("%w: %d 位浮点 WAV", ErrUnsupportedFormat, d.BitDepth)
	default:
		return fmt.Errorf("%w: WAV 编码 %d", ErrUnsupportedFormat, d.WavAudioFormat)
	}
}

func wavCodec(d *wav.Decoder) string {
	if d.WavAudioFormat == wavFormatFloat {
		if d.BitDepth == 64 {
			return "DOUBLE"
		}
		return "FLOAT"
	}
	return fmt.Sprintf("PCM_%d", d.BitDepth)
}

func decodeWAV(r io.ReadSeeker) (*Stream, error) {
	d := wav.NewDecoder(r)
	if !d.IsValidFile() {
		return nil, errors.New("无效的 WAV 文件")
	}
	if err := checkWAVFormat(d); err != nil {
		return nil, err
	}
	channels := int(d.NumChans)
	if channels <= 0 {
		return nil, errors.New("WAV 声道数为 0")
	}
	if d.WavAudioFormat == wavFormatFloat {
		return decodeFloatWAV(d, channels)
	}

	buf, err := d.FullPCMBuffer()
	if err != nil {
		return nil, fmt.Errorf("读取 PCM 数据失败: %w", err)
	}
	// 截掉不完整的尾部帧
	data := buf.Data[:len(buf.Data)/channels*channels]
	return NewInterleaved(IntToFloat32(data, int(d.BitDepth)), channels, int(d.SampleRate))
}

// decodeFloatWAV 直接读取 data 块。go-audio 会把浮点样本当作整数解析。
func decodeFloatWAV(d *wav.Decoder, channels int) (*Stream, error) {
	if err := d.FwdToPCM(); err != nil {
		return nil, fmt.Errorf("定位 PCM 数据失败: %w", err)
	}
	raw, err := io.ReadAll(io.LimitReader(d.PCMChunk, int64(d.PCMSize)))
	if err != nil {
		return nil, fmt.Errorf("读取 PCM 数据失败: %w", err)
	}

	width := int(d.BitDepth) / 8
	count := len(raw) / width / channels * channels
	samples := make([]float32, count)
	for i := range samples {
		b := raw[i*width:]
		if width == 8 {
			samples[i] = float32(math.Float64frombits(binary.LittleEndian.Uint64(b)))
		} else {
			samples[i] = math.Float32frombits(binary.LittleEndian.Uint32(b))
		}
	}
	return NewInterleaved(samples, channels, int(d.SampleRate))
}

func decodeMP3(r io.Reader) (*Stream, error) {
	d, err := mp3.NewDecoder(r)
	if err != nil {
		return nil, fmt.Errorf("MP3 解码失败: %w", err)
	}
	pcm, err := io.ReadAll(d)
	if err != nil {
		return nil, fmt.Errorf("读取 PCM 数据失败: %w", err)
	}
	if len(pcm) == 0 {
		return nil, errors.New("MP3 不含音频数据")
	}
	return &Stream{Samples: StereoBytesToPlanar(pcm), SampleRate: d.SampleRate()}, nil
}

func decodeFLAC(r io.Reader) (*Stream, error) {
	stream, err := flac.New(r)
	if err != nil {
		return nil, fmt.Errorf("FLAC 解析失败: %w", err)
	}
	defer stream.Close()

	channels := int(stream.Info.NChannels)
	scale, err := flacScale(int(stream.Info.BitsPerSample))
	if err != nil {
		return nil, err
	}
	planar := make([][]float32, channels)
	for ch := range planar {
		planar[ch] = make([]float32, 0, stream.Info.NSamples)
	}

	for {
		frame, err := stream.ParseNext()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("FLAC 帧解码失败: %w", err)
		}
		for ch := 0; ch < channels && ch < len(frame.Subframes); ch++ {
			for _, v := range frame.Subframes[ch].Samples {
				planar[ch] = append(planar[ch], float32(v)/scale)
			}
		}
	}
	return &Stream{Samples: planar, SampleRate: int(stream.Info.SampleRate)}, nil
}

// flacScale 返回把 depth 位整数样本归一化到 [-1, 1) 的除数。
func flacScale(depth int) (float32, error) {
	if depth <= 0 || depth > 32 {
		return 0, fmt.Errorf("FLAC 位深非法: %d", depth)
	}
	return float32(int64(1) << uint(depth-1)), nil
}

// Probe 读取音频元数据。WAV 和 FLAC 只读头部；MP3 需要走一遍解码器来统计长度。
func Probe(path string) (Header, error) {
	format := FormatOf(path)
	h, err := probe(path, format)
	if err != nil {
		return Header{}, &DecodeError{Path: path, Err: err}
	}
	h.Format = format
	if h.SampleRate <= 0 || h.Channels <= 0 {
		return Header{}, &DecodeError{Path: path, Err: fmt.Errorf("非法的采样率 %d 或声道数 %d", h.SampleRate, h.Channels)}
	}
	return h, nil
}

func probe(path, format string) (Header, error) {
	switch format {
	case "wav":
		f, err := os.Open(path)
		if err != nil {
			return Header{}, err
		}
		defer f.Close()
		d := wav.NewDecoder(f)
		if !d.IsValidFile() {
			return Header{}, errors.New("无效的 WAV 文件")
		}
		if err := checkWAVFormat(d); err != nil {
			return Header{}, err
		}
		if err := d.FwdToPCM(); err != nil {
			return Header{}, fmt.Errorf("定位 PCM 数据失败: %w", err)
		}
		frameBytes := int(d.BitDepth) / 8 * int(d.NumChans)
		if frameBytes <= 0 {
			return Header{}, errors.New("WAV 头部位深或声道数为 0")
		}
		return Header{
			Codec:      wavCodec(d),
			SampleRate: int(d.SampleRate),
			Channels:   int(d.NumChans),
			Frames:     int64(d.PCMSize / frameBytes),
		}, nil
	case "mp3":
		f, err := os.Open(path)
		if err != nil {
			return Header{}, err
		}
		defer f.Close()
		d, err := mp3.NewDecoder(f)
		if err != nil {
			return Header{}, fmt.Errorf("MP3 解码失败: %w", err)
		}
		// go-mp3 输出固定为 16-bit 立体声，每帧 4 字节
		length := d.Length()
		if length < 0 {
			n, err := io.Copy(io.Discard, d)
			if err != nil {
				return Header{}, fmt.Errorf("读取 PCM 数据失败: %w", err)
			}
			length = n
		}
		return Header{
			Codec:      "MPEG_LAYER_III",
			SampleRate: d.SampleRate(),
			Channels:   2,
			Frames:     length / 4,
		}, nil
	case "flac":
		stream, err := flac.Open(path)
		if err != nil {
			return Header{}, fmt.Errorf("FLAC 解析失败: %w", err)
		}
		defer stream.Close()
		if _, err := flacScale(int(stream.Info.BitsPerSample)); err != nil {
			return Header{}, err
		}
		return Header{
			Codec:      fmt.Sprintf("PCM_%d", stream.Info.BitsPerSample),
			SampleRate: int(stream.Info.SampleRate),
			Channels:   int(stream.Info.NChannels),
			Frames:     int64(stream.Info.NSamples),
		}, nil
	default:
		return Header{}, fmt.Errorf("%w: %q", ErrUnsupportedFormat, format)
	}
}

// EncodeWAV 将 Stream 编码为 16-bit PCM WAV。
// 先写入 path.part，成功后再重命名，失败时不会在 path 留下截断的文件。
func EncodeWAV(path string, s *Stream) error {
	if err := s.Validate(); err != nil {
		return fmt.Errorf("编码 WAV 失败: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("创建输出目录失败: %w", err)
	}

	tmpPath := path + ".part"
	f, err := os.Create(tmpPath)
	if err != nil {
		return fmt.Errorf("创建临时文件失败: %w", err)
	}

	if err := writeWAV(f, s); err != nil {
		f.Close()
		os.Remove(tmpPath)
		return err
	}
	if err := f.Close(); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("关闭临时文件失败: %w", err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("重命名输出文件失败: %w", err)
	}
	return nil
}

func writeWAV(w io.WriteSeeker, s *Stream) error {
	channels := s.Channels()
	pcm := Float32ToInt16(s.Interleaved())
	data := make([]int, len(pcm))
	for i, v := range pcm {
		data[i] = int(v)
	}

	buf := &goaudio.IntBuffer{
		Format:         &goaudio.Format{NumChannels: channels, SampleRate: s.SampleRate},
		Data:           data,
		SourceBitDepth: 16,
	}
	enc := wav.NewEncoder(w, s.SampleRate, 16, channels, 1)
	if err := enc.Write(buf); err != nil {
		return fmt.Errorf("写入 WAV 失败: %w", err)
	}
	if err := enc.Close(); err != nil {
		return fmt.Errorf("关闭 WAV 编码器失败: %w", err)
	}
	return nil
}
