package grpc

import (
	"context"
	"errors"
	"testing"
	"time"

	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	"github.com/nadzzz/dunning/internal/config"
	"github.com/nadzzz/dunning/internal/message"
)

type fakeService struct {
	models map[message.Language]bool
}

func (f *fakeService) ProcessVoice(context.Context, *message.VoiceRequest) (*message.VoiceResult, error) {
	return nil, errors.New("not used")
}

func (f *fakeService) ClassifyText(context.Context, *message.TextRequest) (*message.TextResult, error) {
	return nil, errors.New("not used")
}

func (f *fakeService) Prompt(context.Context, *message.PromptRequest) (*message.PromptResult, error) {
	return nil, errors.New("not used")
}

func (f *fakeService) Health(context.Context) *message.HealthStatus {
	return &message.HealthStatus{Models: f.models}
}

func (f *fakeService) Languages() []message.LanguageInfo                 { return nil }
func (f *fakeService) Categories(message.Language) []message.CategoryInfo { return nil }

func status(t *testing.T, tr *Transport, service string) healthpb.HealthCheckResponse_ServingStatus {
	t.Helper()
	resp, err := tr.health.Check(context.Background(), &healthpb.HealthCheckRequest{Service: service})
	if err != nil {
		t.Fatalf("Check(%q): %v", service, err)
	}
	return resp.GetStatus()
}

func TestRefresh(t *testing.T) {
	tr := New(config.GRPCConfig{})
	svc := &fakeService{models: map[message.Language]bool{message.LanguageKK: true}}

	tr.Refresh(context.Background(), svc)
	if got := status(t, tr, ""); got != healthpb.HealthCheckResponse_SERVING {
		t.Errorf("overall = %v, want SERVING", got)
	}
	if got := status(t, tr, "dunning.recognizer.ru"); got != healthpb.HealthCheckResponse_NOT_SERVING {
		t.Errorf("ru = %v, want NOT_SERVING", got)
	}
	if got := status(t, tr, "dunning.recognizer.kk"); got != healthpb.HealthCheckResponse_SERVING {
		t.Errorf("kk = %v, want SERVING", got)
	}

	svc.models = nil
	tr.Refresh(context.Background(), svc)
	if got := status(t, tr, ""); got != healthpb.HealthCheckResponse_NOT_SERVING {
		t.Errorf("overall without models = %v, want NOT_SERVING", got)
	}
}

func TestSendUnsupported(t *testing.T) {
	tr := New(config.GRPCConfig{})
	err := tr.Send(context.Background(), message.Target{ServiceName: "crm"}, []byte("{}"))
	if !errors.Is(err, ErrSendUnsupported) {
		t.Errorf("err = %v, want ErrSendUnsupported", err)
	}
	if err := tr.Close(); err != nil {
		t.Errorf("Close before Listen: %v", err)
	}
}

func TestCloseStopsListen(t *testing.T) {
	for _, tc := range []struct {
		name  string
		delay time.Duration
	}{
		{"before serving", 0},
		{"while serving", 50 * time.Millisecond},
	} {
		t.Run(tc.name, func(t *testing.T) {
			tr := New(config.GRPCConfig{})
			done := make(chan error, 1)
			go func() {
				done <- tr.Listen(context.Background(), &fakeService{})
			}()
			time.Sleep(tc.delay)
			if err := tr.Close(); err != nil {
				t.Fatalf("Close: %v", err)
			}
			select {
			case err := <-done:
				if err != nil {
					t.Errorf("Listen = %v, want nil after Close", err)
				}
			case <-time.After(2 * time.Second):
				t.Fatal("Listen did not return after Close")
			}
		})
	}
}
