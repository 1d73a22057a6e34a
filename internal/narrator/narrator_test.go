package narrator

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/tcross/narrator/internal/audio/mp3test"
	"github.com/tcross/narrator/internal/history"
	"github.com/tcross/narrator/internal/speech"
	"github.com/tcross/narrator/internal/tts"
)

type fakeStream struct {
	mu     sync.Mutex
	calls  int
	voice  string
	rate   string
	chunks []tts.Chunk
	err    error
	// delay 在发送每个块之前等待，用于模拟慢速后端
	delay time.Duration
}

func (f *fakeStream) Name() string { return "fake-stream" }

func (f *fakeStream) Stream(ctx context.Context, text, voice, rate string) (<-chan tts.Chunk, error) {
	f.mu.Lock()
	f.calls++
	f.voice, f.rate = voice, rate
	f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	ch := make(chan tts.Chunk)
	go func() {
		defer close(ch)
		for _, c := range f.chunks {
			if f.delay > 0 {
				time.Sleep(f.delay)
			}
			select {
			case ch <- c:
			case <-ctx.Done():
				return
			}
		}
	}()
	return ch, nil
}

type fakeFile struct {
	calls int
	lang  speech.Language
	path  string
	data  []byte
	err   error
}

func (f *fakeFile) Name() string { return "fake-file" }

func (f *fakeFile) Save(_ context.Context, _ string, lang speech.Language, path string) error {
	f.calls++
	f.lang, f.path = lang, path
	if f.err != nil {
		return f.err
	}
	return os.WriteFile(path, f.data, 0644)
}

type fakeTempo struct {
	calls int
	speed float64
	err   error
}

func (f *fakeTempo) Apply(_ context.Context, src, dst string, speed float64) error {
	f.calls++
	f.speed = speed
	if f.err != nil {
		return f.err
	}
	data, err := os.ReadFile(src)
	if err != nil {
		return err
	}
	return os.WriteFile(dst, append([]byte("stretched:"), data...), 0644)
}

func audioChunks() []tts.Chunk {
	return []tts.Chunk{
		{Kind: tts.ChunkAudio, Data: []byte("aa")},
		{Kind: tts.ChunkWordBoundary},
		{Kind: tts.ChunkAudio, Data: []byte("bb")},
		{Kind: tts.ChunkSentenceBoundary, Data: []byte("meta")},
		{Kind: tts.ChunkAudio, Data: []byte("cc")},
	}
}

func request(engine speech.Engine, lang speech.Language, gender speech.Gender, speed float64) speech.Request {
	return speech.Request{Text: "hello", Language: lang, Gender: gender, Speed: speed, Engine: engine}
}

func TestDispatcher_StreamWritesOnlyAudio(t *testing.T) {
	primary := &fakeStream{chunks: audioChunks()}
	d := NewDispatcher(DispatcherConfig{Primary: primary})
	out := filepath.Join(t.TempDir(), "out.mp3")

	if err := d.Synthesize(context.Background(), request(speech.EngineEdge, speech.English, speech.Male, 1.25), out); err != nil {
		t.Fatalf("Synthesize 失败: %v", err)
	}
	data, err := os.ReadFile(out)
	if err != nil {
		t.Fatal(err)
	}
	if string(data) != "aabbcc" {
		t.Errorf("文件内容应只包含音频块, got %q", data)
	}
	if primary.voice != "en-US-GuyNeural" {
		t.Errorf("voice: got %q", primary.voice)
	}
	if primary.rate != "+25%" {
		t.Errorf("rate: got %q", primary.rate)
	}
}

func TestDispatcher_StreamVoiceFallback(t *testing.T) {
	primary := &fakeStream{chunks: audioChunks()}
	d := NewDispatcher(DispatcherConfig{Primary: primary})
	out := filepath.Join(t.TempDir(), "out.mp3")

	req := request(speech.EngineEdge, "fr", speech.Male, 1.0)
	if err := d.Synthesize(context.Background(), req, out); err != nil {
		t.Fatalf("Synthesize 失败: %v", err)
	}
	if primary.voice != "en-US-JennyNeural" {
		t.Errorf("未登记的组合应回退到英语女声, got %q", primary.voice)
	}
	if primary.rate != "+0%" {
		t.Errorf("rate: got %q", primary.rate)
	}
}

func TestDispatcher_StreamFailureLeavesNoFile(t *testing.T) {
	cases := map[string]*fakeStream{
		"connect":  {err: errors.New("connection refused")},
		"no audio": {chunks: []tts.Chunk{{Kind: tts.ChunkWordBoundary}}},
		"empty":    {},
	}
	for name, primary := range cases {
		t.Run(name, func(t *testing.T) {
			d := NewDispatcher(DispatcherConfig{Primary: primary})
			out := filepath.Join(t.TempDir(), "out.mp3")
			err := d.Synthesize(context.Background(), request(speech.EngineEdge, speech.Japanese, speech.Female, 1.0), out)
			if !errors.Is(err, ErrSynthesisFailed) {
				t.Fatalf("got %v, want ErrSynthesisFailed", err)
			}
			if IsDegraded(err) {
				t.Error("硬失败不应被视为降级")
			}
			if _, err := os.Stat(out); !os.IsNotExist(err) {
				t.Error("失败后不应留下文件")
			}
		})
	}
}

func TestDispatcher_StreamErrorChunkRemovesPartial(t *testing.T) {
	primary := &fakeStream{chunks: []tts.Chunk{
		{Kind: tts.ChunkAudio, Data: []byte("aa")},
		{Kind: tts.ChunkError, Err: errors.New("websocket: close 1006")},
		{Kind: tts.ChunkAudio, Data: []byte("bb")},
	}}
	d := NewDispatcher(DispatcherConfig{Primary: primary})
	out := filepath.Join(t.TempDir(), "out.mp3")

	err := d.Synthesize(context.Background(), request(speech.EngineEdge, speech.English, speech.Female, 1.0), out)
	if !errors.Is(err, ErrSynthesisFailed) {
		t.Fatalf("got %v, want ErrSynthesisFailed", err)
	}
	if !strings.Contains(err.Error(), "close 1006") {
		t.Errorf("错误信息应包含后端原因: %v", err)
	}
	if _, err := os.Stat(out); !os.IsNotExist(err) {
		t.Error("后端中途失败后不应保留不完整的文件")
	}
}

func TestDispatcher_StreamTimeoutRemovesPartial(t *testing.T) {
	primary := &fakeStream{chunks: audioChunks(), delay: 30 * time.Millisecond}
	d := NewDispatcher(DispatcherConfig{Primary: primary, StreamTimeout: 50 * time.Millisecond})
	out := filepath.Join(t.TempDir(), "out.mp3")

	err := d.Synthesize(context.Background(), request(speech.EngineEdge, speech.English, speech.Female, 1.0), out)
	if !errors.Is(err, ErrSynthesisFailed) {
		t.Fatalf("got %v, want ErrSynthesisFailed", err)
	}
	if _, err := os.Stat(out); !os.IsNotExist(err) {
		t.Error("超时后不应保留不完整的文件")
	}
}

func TestDispatcher_CallerCancelDoesNotAbort(t *testing.T) {
	primary := &fakeStream{chunks: audioChunks(), delay: 10 * time.Millisecond}
	d := NewDispatcher(DispatcherConfig{Primary: primary})
	out := filepath.Join(t.TempDir(), "out.mp3")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := d.Synthesize(ctx, request(speech.EngineEdge, speech.English, speech.Female, 1.0), out); err != nil {
		t.Fatalf("调用方取消不应中断合成: %v", err)
	}
	if primary.calls != 1 {
		t.Errorf("后端应恰好调用一次, got %d", primary.calls)
	}
	if data, _ := os.ReadFile(out); string(data) != "aabbcc" {
		t.Errorf("got %q", data)
	}
}

func TestDispatcher_SecondaryNormalSpeedSkipsTempo(t *testing.T) {
	secondary := &fakeFile{data: []byte("mp3")}
	tempo := &fakeTempo{}
	d := NewDispatcher(DispatcherConfig{Secondary: secondary, Tempo: tempo})
	dir := t.TempDir()
	out := filepath.Join(dir, "out.mp3")

	if err := d.Synthesize(context.Background(), request(speech.EngineGoogle, speech.Japanese, speech.Male, 1.0), out); err != nil {
		t.Fatalf("Synthesize 失败: %v", err)
	}
	if tempo.calls != 0 {
		t.Errorf("1.0x 不应调用变速, got %d calls", tempo.calls)
	}
	if secondary.lang != speech.Japanese {
		t.Errorf("lang: got %q", secondary.lang)
	}
	if data, _ := os.ReadFile(out); string(data) != "mp3" {
		t.Errorf("got %q", data)
	}
	if _, err := os.Stat(tempPath(out)); !os.IsNotExist(err) {
		t.Error("临时文件应已移走")
	}
}

func TestDispatcher_SecondaryAppliesTempo(t *testing.T) {
	secondary := &fakeFile{data: []byte("mp3")}
	tempo := &fakeTempo{}
	d := NewDispatcher(DispatcherConfig{Secondary: secondary, Tempo: tempo})
	out := filepath.Join(t.TempDir(), "out.mp3")

	if err := d.Synthesize(context.Background(), request(speech.EngineGoogle, speech.English, speech.Female, 0.75), out); err != nil {
		t.Fatalf("Synthesize 失败: %v", err)
	}
	if tempo.calls != 1 || tempo.speed != 0.75 {
		t.Errorf("tempo: %d calls, speed %v", tempo.calls, tempo.speed)
	}
	if secondary.path != tempPath(out) {
		t.Errorf("备用后端应写入临时文件, got %q", secondary.path)
	}
	if data, _ := os.ReadFile(out); string(data) != "stretched:mp3" {
		t.Errorf("got %q", data)
	}
	if _, err := os.Stat(tempPath(out)); !os.IsNotExist(err) {
		t.Error("临时文件应已删除")
	}
}

func TestDispatcher_SecondaryTempoFailureDegrades(t *testing.T) {
	for name, tempo := range map[string]Tempo{
		"unavailable": &fakeTempo{err: errors.New("ffmpeg not found")},
		"nil":         nil,
	} {
		t.Run(name, func(t *testing.T) {
			secondary := &fakeFile{data: []byte("mp3")}
			d := NewDispatcher(DispatcherConfig{Secondary: secondary, Tempo: tempo})
			out := filepath.Join(t.TempDir(), "out.mp3")

			err := d.Synthesize(context.Background(), request(speech.EngineGoogle, speech.English, speech.Female, 1.5), out)
			if !IsDegraded(err) {
				t.Fatalf("got %v, want DegradedError", err)
			}
			var de *DegradedError
			errors.As(err, &de)
			if de.Path != out || de.Speed != 1.5 {
				t.Errorf("DegradedError: %+v", de)
			}
			if data, _ := os.ReadFile(out); string(data) != "mp3" {
				t.Errorf("应输出正常语速音频, got %q", data)
			}
		})
	}
}

func TestDispatcher_SecondaryFailure(t *testing.T) {
	secondary := &fakeFile{err: errors.New("429 Too Many Requests")}
	tempo := &fakeTempo{}
	d := NewDispatcher(DispatcherConfig{Secondary: secondary, Tempo: tempo})
	dir := t.TempDir()
	out := filepath.Join(dir, "out.mp3")

	err := d.Synthesize(context.Background(), request(speech.EngineGoogle, speech.English, speech.Female, 1.5), out)
	if !errors.Is(err, ErrSynthesisFailed) {
		t.Fatalf("got %v", err)
	}
	if tempo.calls != 0 {
		t.Error("合成失败后不应变速")
	}
	entries, _ := os.ReadDir(dir)
	if len(entries) != 0 {
		t.Errorf("失败后目录应为空, got %d entries", len(entries))
	}
}

func TestDispatcher_InvalidEngine(t *testing.T) {
	d := NewDispatcher(DispatcherConfig{})
	err := d.Synthesize(context.Background(), request("azure", speech.English, speech.Female, 1.0), filepath.Join(t.TempDir(), "x.mp3"))
	if !errors.Is(err, speech.ErrInvalidEngine) {
		t.Errorf("got %v", err)
	}
}

func TestDispatcher_Voice(t *testing.T) {
	d := NewDispatcher(DispatcherConfig{})
	if v := d.Voice(request(speech.EngineGoogle, speech.English, speech.Male, 1)); v != "" {
		t.Errorf("备用后端不使用音色, got %q", v)
	}
	if v := d.Voice(request(speech.EngineEdge, speech.Japanese, speech.Male, 1)); v != "ja-JP-KeitaNeural" {
		t.Errorf("got %q", v)
	}
}

type memRecorder struct {
	mu      sync.Mutex
	records []history.Record
}

func (m *memRecorder) Add(_ context.Context, rec history.Record) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.records = append(m.records, rec)
	return nil
}

var fixedNow = func() time.Time { return time.Date(2025, 3, 14, 9, 26, 53, 0, time.Local) }

func newTestService(t *testing.T, primary tts.StreamEngine, secondary tts.FileEngine, tempo Tempo) (*Service, *memRecorder, string) {
	t.Helper()
	dir := filepath.Join(t.TempDir(), "outputs")
	rec := &memRecorder{}
	s := NewService(ServiceConfig{
		Dispatcher: NewDispatcher(DispatcherConfig{Primary: primary, Secondary: secondary, Tempo: tempo}),
		OutputDir:  dir,
		FilePrefix: "tekross_voice",
		Recorder:   rec,
		Now:        fixedNow,
	})
	return s, rec, dir
}

func TestService_Generate(t *testing.T) {
	primary := &fakeStream{chunks: []tts.Chunk{{Kind: tts.ChunkAudio, Data: mp3test.Silent(40)}}}
	s, rec, dir := newTestService(t, primary, nil, nil)

	res, err := s.Generate(context.Background(), request(speech.EngineEdge, speech.Japanese, speech.Male, 1.25))
	if err != nil {
		t.Fatalf("Generate 失败: %v", err)
	}
	if res.FileName != "tekross_voice_ja_male_1_25x_20250314_092653.mp3" {
		t.Errorf("FileName: got %q", res.FileName)
	}
	if res.Path != filepath.Join(dir, res.FileName) {
		t.Errorf("Path: got %q", res.Path)
	}
	if res.Voice != "ja-JP-KeitaNeural" || res.Degraded {
		t.Errorf("result: %+v", res)
	}
	if res.Size == 0 || res.Duration < 900*time.Millisecond {
		t.Errorf("size/duration: %d, %v", res.Size, res.Duration)
	}
	data, err := res.Audio()
	if err != nil || int64(len(data)) != res.Size {
		t.Errorf("Audio: %d bytes, %v", len(data), err)
	}

	if len(rec.records) != 1 {
		t.Fatalf("应记录 1 条历史, got %d", len(rec.records))
	}
	r := rec.records[0]
	if r.ID != res.ID || r.Status != history.StatusOK || r.File != res.FileName || r.Error != "" {
		t.Errorf("record: %+v", r)
	}
}

func TestService_EmptyTextNoBackendCall(t *testing.T) {
	primary := &fakeStream{chunks: audioChunks()}
	secondary := &fakeFile{data: []byte("mp3")}
	s, rec, dir := newTestService(t, primary, secondary, nil)

	for _, engine := range []speech.Engine{speech.EngineEdge, speech.EngineGoogle} {
		req := request(engine, speech.English, speech.Female, 1.0)
		req.Text = " \n\t "
		res, err := s.Generate(context.Background(), req)
		if !errors.Is(err, speech.ErrEmptyText) || res != nil {
			t.Errorf("%s: got %v, %v", engine, res, err)
		}
	}
	if primary.calls != 0 || secondary.calls != 0 {
		t.Errorf("空文本不应调用后端: %d, %d", primary.calls, secondary.calls)
	}
	if len(rec.records) != 0 {
		t.Error("空文本不应记录历史")
	}
	if _, err := os.Stat(dir); !os.IsNotExist(err) {
		t.Error("空文本不应创建输出目录")
	}
}

func TestService_Degraded(t *testing.T) {
	secondary := &fakeFile{data: mp3test.Silent(20)}
	s, rec, _ := newTestService(t, nil, secondary, &fakeTempo{err: errors.New("ffmpeg not found")})

	res, err := s.Generate(context.Background(), request(speech.EngineGoogle, speech.English, speech.Female, 0.5))
	if !IsDegraded(err) {
		t.Fatalf("got %v, want DegradedError", err)
	}
	if res == nil || !res.Degraded {
		t.Fatalf("降级时应返回结果: %+v", res)
	}
	if !strings.HasSuffix(res.FileName, "_en_female_0_5x_20250314_092653.mp3") {
		t.Errorf("FileName: %q", res.FileName)
	}
	if _, err := os.Stat(res.Path); err != nil {
		t.Errorf("降级文件应存在: %v", err)
	}
	if rec.records[0].Status != history.StatusDegraded || rec.records[0].Error == "" {
		t.Errorf("record: %+v", rec.records[0])
	}
}

func TestService_FailureNoResult(t *testing.T) {
	s, rec, dir := newTestService(t, &fakeStream{err: errors.New("dial tcp: timeout")}, nil, nil)

	res, err := s.Generate(context.Background(), request(speech.EngineEdge, speech.English, speech.Female, 1.0))
	if !errors.Is(err, ErrSynthesisFailed) || res != nil {
		t.Fatalf("got %+v, %v", res, err)
	}
	entries, _ := os.ReadDir(dir)
	if len(entries) != 0 {
		t.Errorf("失败后不应留下文件, got %d", len(entries))
	}
	if len(rec.records) != 1 || rec.records[0].Status != history.StatusFailed || rec.records[0].File != "" {
		t.Errorf("失败也应记录历史: %+v", rec.records)
	}
}

func TestService_UniqueFileNames(t *testing.T) {
	primary := &fakeStream{chunks: audioChunks()}
	s, _, _ := newTestService(t, primary, nil, nil)
	req := request(speech.EngineEdge, speech.English, speech.Female, 1.0)

	first, err := s.Generate(context.Background(), req)
	if err != nil {
		t.Fatal(err)
	}
	second, err := s.Generate(context.Background(), req)
	if err != nil {
		t.Fatal(err)
	}
	if first.FileName == second.FileName {
		t.Fatalf("同一秒内的请求不应覆盖文件: %q", first.FileName)
	}
	if want := strings.TrimSuffix(first.FileName, ".mp3") + "_2.mp3"; second.FileName != want {
		t.Errorf("got %q, want %q", second.FileName, want)
	}
}

func TestService_NilRecorder(t *testing.T) {
	s := NewService(ServiceConfig{
		Dispatcher: NewDispatcher(DispatcherConfig{Primary: &fakeStream{chunks: audioChunks()}}),
		OutputDir:  t.TempDir(),
	})
	if _, err := s.Generate(context.Background(), request(speech.EngineEdge, speech.English, speech.Female, 1.0)); err != nil {
		t.Fatalf("Generate 失败: %v", err)
	}
}

func TestService_ConcurrentUniqueFileNames(t *testing.T) {
	primary := &fakeStream{chunks: audioChunks(), delay: 5 * time.Millisecond}
	s, rec, dir := newTestService(t, primary, nil, nil)
	req := request(speech.EngineEdge, speech.English, speech.Female, 1.0)

	const n = 8
	var wg sync.WaitGroup
	names := make([]string, n)
	errs := make([]error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			res, err := s.Generate(context.Background(), req)
			errs[i] = err
			if res != nil {
				names[i] = res.FileName
			}
		}(i)
	}
	wg.Wait()

	seen := make(map[string]bool)
	for i, name := range names {
		if errs[i] != nil {
			t.Fatalf("Generate 失败: %v", errs[i])
		}
		if seen[name] {
			t.Fatalf("并发请求得到相同的文件名: %q", name)
		}
		seen[name] = true
		if data, _ := os.ReadFile(filepath.Join(dir, name)); string(data) != "aabbcc" {
			t.Errorf("%s: 文件内容被其他请求覆盖: %q", name, data)
		}
	}
	if len(rec.records) != n {
		t.Errorf("应记录 %d 条历史, got %d", n, len(rec.records))
	}
}

func TestService_NameReservationError(t *testing.T) {
	primary := &fakeStream{chunks: audioChunks()}
	s := NewService(ServiceConfig{
		Dispatcher: NewDispatcher(DispatcherConfig{Primary: primary}),
		OutputDir:  t.TempDir(),
		// 超出文件系统的文件名长度上限
		FilePrefix: strings.Repeat("x", 300),
	})

	done := make(chan error, 1)
	go func() {
		_, err := s.Generate(context.Background(), request(speech.EngineEdge, speech.English, speech.Female, 1.0))
		done <- err
	}()
	select {
	case err := <-done:
		if err == nil {
			t.Fatal("期望创建文件失败")
		}
	case <-time.After(5 * time.Second):
		t.Fatal("文件名分配不应无限重试")
	}
	if primary.calls != 0 {
		t.Error("分配文件名失败时不应调用后端")
	}
}

func TestService_FailureReleasesReservation(t *testing.T) {
	// 后端没有返回任何音频，占位文件也应删除
	s, _, dir := newTestService(t, &fakeStream{chunks: []tts.Chunk{{Kind: tts.ChunkWordBoundary}}}, nil, nil)

	if _, err := s.Generate(context.Background(), request(speech.EngineEdge, speech.English, speech.Female, 1.0)); !errors.Is(err, ErrSynthesisFailed) {
		t.Fatalf("got %v", err)
	}
	entries, _ := os.ReadDir(dir)
	if len(entries) != 0 {
		t.Errorf("失败后不应留下占位文件, got %d", len(entries))
	}
}
