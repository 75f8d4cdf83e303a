package aws

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"testing"

	"github.com/aws/aws-sdk-go-v2/service/s3"
)

type mockS3Client struct {
	objects map[string][]byte // bucket/key → body
	puts    []*s3.PutObjectInput
	err     error
}

func (m *mockS3Client) GetObject(_ context.Context, input *s3.GetObjectInput, _ ...func(*s3.Options)) (*s3.GetObjectOutput, error) {
	if m.err != nil {
		return nil, m.err
	}
	body, ok := m.objects[*input.Bucket+"/"+*input.Key]
	if !ok {
		return nil, fmt.Errorf("NoSuchKey")
	}
	return &s3.GetObjectOutput{Body: io.NopCloser(bytes.NewReader(body))}, nil
}

func (m *mockS3Client) PutObject(_ context.Context, input *s3.PutObjectInput, _ ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	if m.err != nil {
		return nil, m.err
	}
	m.puts = append(m.puts, input)
	return &s3.PutObjectOutput{}, nil
}

func TestParseS3URI(t *testing.T) {
	tests := []struct {
		uri        string
		wantBucket string
		wantKey    string
		wantErr    bool
	}{
		{"s3://bucket/rules/rule_info.json", "bucket", "rules/rule_info.json", false},
		{"s3://bucket", "bucket", "", false},
		{"s3:///key", "", "", true},
		{"/local/path.json", "", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.uri, func(t *testing.T) {
			bucket, key, err := ParseS3URI(tt.uri)
			if tt.wantErr {
				if err == nil {
					t.Fatal("expected error")
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if bucket != tt.wantBucket || key != tt.wantKey {
				t.Fatalf("expected %s/%s, got %s/%s", tt.wantBucket, tt.wantKey, bucket, key)
			}
		})
	}
}

func TestObjectStore_Get(t *testing.T) {
	mock := &mockS3Client{objects: map[string][]byte{"meta/rule_info.json": []byte(`{}`)}}
	data, err := NewObjectStore(mock).Get(context.Background(), "s3://meta/rule_info.json")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if string(data) != "{}" {
		t.Fatalf("unexpected body %q", data)
	}

	if _, err := NewObjectStore(mock).Get(context.Background(), "s3://meta"); err == nil {
		t.Fatal("expected error for missing key")
	}
}

func TestObjectStore_Put(t *testing.T) {
	mock := &mockS3Client{}
	err := NewObjectStore(mock).Put(context.Background(), "s3://archive/2026-03-01/finance.json", "application/json", []byte(`{"a":1}`))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(mock.puts) != 1 {
		t.Fatalf("expected 1 put, got %d", len(mock.puts))
	}
	in := mock.puts[0]
	if *in.Bucket != "archive" || *in.Key != "2026-03-01/finance.json" || *in.ContentType != "application/json" {
		t.Fatalf("unexpected put input: %+v", in)
	}
}

func TestObjectStore_Error(t *testing.T) {
	mock := &mockS3Client{err: fmt.Errorf("AccessDenied")}
	if _, err := NewObjectStore(mock).Get(context.Background(), "s3://b/k"); err == nil {
		t.Fatal("expected get error")
	}
	if err := NewObjectStore(mock).Put(context.Background(), "s3://b/k", "text/plain", nil); err == nil {
		t.Fatal("expected put error")
	}
}
