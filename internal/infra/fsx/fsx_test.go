package fsx

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestWriteFileAtomicReplace_CreatesAndReplaces(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "out")

	if err := WriteFileAtomicReplace(dir, "movies.html", []byte("v1")); err != nil {
		t.Fatalf("不期望错误：%v", err)
	}
	b, err := os.ReadFile(filepath.Join(dir, "movies.html"))
	if err != nil || string(b) != "v1" {
		t.Fatalf("期望读到 v1，实际=%q err=%v", b, err)
	}

	// 覆盖写：replace 语义。
	if err := WriteFileAtomicReplace(dir, "movies.html", []byte("v2")); err != nil {
		t.Fatalf("不期望错误：%v", err)
	}
	b, _ = os.ReadFile(filepath.Join(dir, "movies.html"))
	if string(b) != "v2" {
		t.Fatalf("期望覆盖为 v2，实际=%q", b)
	}
}

func TestWriteFileAtomicReplace_NoTempLeftover(t *testing.T) {
	dir := t.TempDir()
	if err := WriteFileAtomicReplace(dir, "report.json", []byte("{}")); err != nil {
		t.Fatalf("不期望错误：%v", err)
	}

	ents, err := os.ReadDir(dir)
	if err != nil {
		t.Fatalf("不期望错误：%v", err)
	}
	for _, e := range ents {
		if strings.Contains(e.Name(), ".tmp-") {
			t.Fatalf("不应残留临时文件：%s", e.Name())
		}
	}
}
