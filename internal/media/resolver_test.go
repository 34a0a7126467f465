package media

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"

	"github.com/scrypster/pinpoint/pkg/types"
)

type MockHost struct {
	mock.Mock
}

func (m *MockHost) Host(ctx context.Context, c Candidate) (types.ImageRecord, error) {
	args := m.Called(ctx, c)
	return args.Get(0).(types.ImageRecord), args.Error(1)
}

func urls(cs []Candidate) []string {
	out := make([]string, len(cs))
	for i, c := range cs {
		out[i] = c.URL
	}
	return out
}

func TestOrder(t *testing.T) {
	tests := []struct {
		name string
		src  Sources
		want []string
	}{
		{
			name: "website fills the cap",
			src: Sources{
				Website:            []string{"w1", "w2", "w3"},
				Social:             []string{"s1"},
				Knowledge:          []string{"k1"},
				KnowledgeFillsGaps: true,
			},
			want: []string{"w1", "w2", "w3"},
		},
		{
			name: "social tops up website",
			src: Sources{
				Website: []string{"w1"},
				Social:  []string{"s1", "w1", "s2", "s3"},
			},
			want: []string{"w1", "s1", "s2", "s3"},
		},
		{
			name: "knowledge only when gaps remain",
			src: Sources{
				Website:   []string{"w1"},
				Knowledge: []string{"k1"},
			},
			want: []string{"w1"},
		},
		{
			name: "knowledge fills gaps",
			src: Sources{
				Knowledge:          []string{"k1", "k2", "k3", "k4"},
				KnowledgeFillsGaps: true,
			},
			want: []string{"k1", "k2", "k3", "k4"},
		},
		{
			name: "nothing",
			src:  Sources{KnowledgeFillsGaps: true},
			want: []string{},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, urls(Order(tt.src)))
		})
	}
}

func TestOrder_Sources(t *testing.T) {
	got := Order(Sources{Website: []string{"w"}, Social: []string{"s"}, Knowledge: []string{"k"}, KnowledgeFillsGaps: true})
	assert.Equal(t, []types.ImageSource{types.ImageSourceWebsite, types.ImageSourceSocial, types.ImageSourceKnowledgeGraph},
		[]types.ImageSource{got[0].Source, got[1].Source, got[2].Source})
}

func TestResolver_SkipsFailuresAndCaps(t *testing.T) {
	host := new(MockHost)
	candidates := []Candidate{
		{URL: "a", Source: types.ImageSourceWebsite},
		{URL: "b", Source: types.ImageSourceWebsite},
		{URL: "c", Source: types.ImageSourceSocial},
		{URL: "d", Source: types.ImageSourceSocial},
		{URL: "e", Source: types.ImageSourceKnowledgeGraph},
	}
	host.On("Host", mock.Anything, candidates[0]).Return(types.ImageRecord{URL: "/media/a"}, nil)
	host.On("Host", mock.Anything, candidates[1]).Return(types.ImageRecord{}, errors.New("404"))
	host.On("Host", mock.Anything, candidates[2]).Return(types.ImageRecord{URL: "/media/c"}, nil)
	host.On("Host", mock.Anything, candidates[3]).Return(types.ImageRecord{URL: "/media/d"}, nil)

	got := NewResolver(host).Resolve(context.Background(), candidates)

	assert.Len(t, got, 3)
	assert.Equal(t, "/media/a", got[0].URL)
	assert.Equal(t, "/media/c", got[1].URL)
	assert.Equal(t, "/media/d", got[2].URL)
	host.AssertNotCalled(t, "Host", mock.Anything, candidates[4])
}

func TestResolver_DropsDuplicateContent(t *testing.T) {
	host := new(MockHost)
	candidates := []Candidate{{URL: "a"}, {URL: "b"}, {URL: "c"}}
	host.On("Host", mock.Anything, candidates[0]).Return(types.ImageRecord{URL: "/media/x"}, nil)
	host.On("Host", mock.Anything, candidates[1]).Return(types.ImageRecord{URL: "/media/x"}, nil)
	host.On("Host", mock.Anything, candidates[2]).Return(types.ImageRecord{URL: "/media/y"}, nil)

	got := NewResolver(host).Resolve(context.Background(), candidates)
	assert.Len(t, got, 2)
}

func TestResolver_NilHost(t *testing.T) {
	got := NewResolver(nil).Resolve(context.Background(), []Candidate{{URL: "a"}})
	assert.Empty(t, got)
	assert.NotNil(t, got)
}
