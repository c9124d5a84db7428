package linediff

import "testing"

func TestUnified(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		before  string
		after   string
		context int
		want    string
	}{
		{
			name:   "identical",
			before: "a\nb\n",
			after:  "a\nb\n",
			want:   "",
		},
		{
			name:    "changed line",
			before:  "a\nb\nc\n",
			after:   "a\nB\nc\n",
			context: 1,
			want:    "@@ -1,3 +1,3 @@\n a\n-b\n+B\n c\n",
		},
		{
			name:    "created file",
			before:  "",
			after:   "x\ny\n",
			context: 3,
			want:    "@@ -0,0 +1,2 @@\n+x\n+y\n",
		},
		{
			name:    "two hunks",
			before:  "1\n2\n3\n4\n5\n6\n7\n8\n",
			after:   "one\n2\n3\n4\n5\n6\n7\neight\n",
			context: 1,
			want:    "@@ -1,2 +1,2 @@\n-1\n+one\n 2\n@@ -7,2 +7,2 @@\n 7\n-8\n+eight\n",
		},
		{
			name:    "missing trailing newline",
			before:  "a\n",
			after:   "a\nb",
			context: 0,
			want:    "@@ -1,0 +2,1 @@\n+b\n\\ No newline at end of file\n",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			if got := Unified(tt.before, tt.after, tt.context); got != tt.want {
				t.Errorf("Unified() =\n%q\nwant\n%q", got, tt.want)
			}
		})
	}
}

func TestFile(t *testing.T) {
	t.Parallel()

	got := File("main.go", "package a\n", "package b\n")
	want := "--- a/main.go\n+++ b/main.go\n@@ -1,1 +1,1 @@\n-package a\n+package b\n"
	if got != want {
		t.Errorf("File() =\n%q\nwant\n%q", got, want)
	}
	if File("main.go", "x", "x") != "" {
		t.Error("identical content should produce no diff")
	}
}
