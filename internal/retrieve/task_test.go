package retrieve

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/forcemeta/sfmeta/internal/history"
)

type fakeResolver struct {
	entities map[string][]string
	err      error
	profiles []string
}

func (f *fakeResolver) Resolve(ctx context.Context, profiles []string) (map[string][]string, error) {
	f.profiles = profiles
	if f.err != nil {
		return nil, f.err
	}
	return f.entities, nil
}

type fakeMetadata struct {
	archive    []byte
	err        error
	packageXML string
	apiVersion string
}

func (f *fakeMetadata) Retrieve(ctx context.Context, packageXML, apiVersion string) ([]byte, error) {
	f.packageXML = packageXML
	f.apiVersion = apiVersion
	if f.err != nil {
		return nil, f.err
	}
	return f.archive, nil
}

type fakeRecorder struct {
	records []history.Retrieval
	err     error
}

func (f *fakeRecorder) Record(ctx context.Context, r history.Retrieval) error {
	f.records = append(f.records, r)
	return f.err
}

func TestTaskRun(t *testing.T) {
	resolver := &fakeResolver{entities: map[string][]string{
		"ApexClass":    {"MyClass"},
		"CustomObject": {"Account"},
		"CustomTab":    {},
	}}
	metadata := &fakeMetadata{archive: makeZip(t, map[string]string{
		"profiles/Admin.profile": "<Profile/>",
	})}
	recorder := &fakeRecorder{}
	outputDir := filepath.Join(t.TempDir(), "unpackaged")

	task := &Task{
		Resolver:   resolver,
		Metadata:   metadata,
		History:    recorder,
		APIVersion: "58.0",
		OutputDir:  outputDir,
	}

	result, err := task.Run(context.Background(), []string{"Admin"})
	require.NoError(t, err)

	// The Profile category is added on top of what the resolver returned.
	assert.Equal(t, []string{"Admin"}, result.Categories["Profile"])
	assert.Contains(t, metadata.packageXML, "<members>MyClass</members>")
	assert.Contains(t, metadata.packageXML, "<name>Profile</name>")
	assert.Equal(t, "58.0", metadata.apiVersion)

	// Archive landed on disk.
	_, statErr := os.Stat(filepath.Join(outputDir, "profiles", "Admin.profile"))
	assert.NoError(t, statErr)

	// Run recorded: 1 ApexClass + 1 CustomObject + 1 Profile.
	require.Len(t, recorder.records, 1)
	assert.Equal(t, result.RunID, recorder.records[0].ID)
	assert.Equal(t, 3, recorder.records[0].MemberCount)
	assert.Equal(t, []string{"Admin"}, recorder.records[0].Profiles)
}

func TestTaskRunNoProfiles(t *testing.T) {
	task := &Task{Resolver: &fakeResolver{}, Metadata: &fakeMetadata{}}
	_, err := task.Run(context.Background(), nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "at least one profile")
}

func TestTaskRunResolverFailureProducesNoManifest(t *testing.T) {
	metadata := &fakeMetadata{}
	task := &Task{
		Resolver: &fakeResolver{err: errors.New("batch execution failed")},
		Metadata: metadata,
	}

	_, err := task.Run(context.Background(), []string{"Admin"})
	require.Error(t, err)
	assert.Empty(t, metadata.packageXML)
}

func TestTaskRunHistoryFailureDoesNotFailRun(t *testing.T) {
	resolver := &fakeResolver{entities: map[string][]string{"CustomObject": {}, "CustomTab": {}}}
	metadata := &fakeMetadata{archive: makeZip(t, map[string]string{"package.xml": "<Package/>"})}
	task := &Task{
		Resolver:   resolver,
		Metadata:   metadata,
		History:    &fakeRecorder{err: errors.New("disk full")},
		APIVersion: "58.0",
		OutputDir:  filepath.Join(t.TempDir(), "out"),
	}

	_, err := task.Run(context.Background(), []string{"Admin"})
	require.NoError(t, err)
}
