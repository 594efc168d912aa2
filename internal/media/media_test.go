package media

import (
	"os"
	"path/filepath"
	"reflect"
	"testing"

	"github.com/shirou/gopsutil/v3/disk"
)

func TestFilterMounts(t *testing.T) {
	partitions := []disk.PartitionStat{
		{Device: "/dev/mmcblk0p2", Mountpoint: "/", Fstype: "ext4"},
		{Device: "/dev/mmcblk0p1", Mountpoint: "/boot", Fstype: "vfat"},
		{Device: "/dev/sda1", Mountpoint: "/media/pi/USB", Fstype: "vfat"},
		{Device: "/dev/sda1", Mountpoint: "/media/pi/USB/", Fstype: "vfat"},
		{Device: "/dev/sdb1", Mountpoint: "/mnt/stick", Fstype: "exfat"},
		{Device: "tmpfs", Mountpoint: "/media/ram", Fstype: "tmpfs"},
		{Device: "/dev/sdc1", Mountpoint: "/media", Fstype: "vfat"},
		{Device: "/dev/sdd1", Mountpoint: "/mediafake/x", Fstype: "vfat"},
	}

	got := filterMounts(partitions, []string{"/media", "/mnt"})
	want := []string{"/media/pi/USB", "/mnt/stick"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("filterMounts() = %v, want %v", got, want)
	}
}

func TestPick(t *testing.T) {
	base := t.TempDir()
	plain := filepath.Join(base, "photos")
	update := filepath.Join(base, "update")
	nested := filepath.Join(base, "nested")
	for _, dir := range []string{plain, update, filepath.Join(nested, "deep")} {
		if err := os.MkdirAll(dir, 0755); err != nil {
			t.Fatal(err)
		}
	}
	os.WriteFile(filepath.Join(plain, "holiday.jpg"), []byte("x"), 0644)
	os.WriteFile(filepath.Join(update, "v2.0.0.txt"), nil, 0644)
	os.WriteFile(filepath.Join(nested, "deep", "v3.0.0.txt"), nil, 0644)

	tests := []struct {
		name   string
		mounts []string
		want   string
	}{
		{name: "skips media without marker", mounts: []string{plain, update}, want: update},
		{name: "marker must be at the root", mounts: []string{nested}, want: ""},
		{name: "unreadable mount", mounts: []string{filepath.Join(base, "gone"), update}, want: update},
		{name: "none", mounts: nil, want: ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Pick(tt.mounts); got != tt.want {
				t.Errorf("Pick() = %q, want %q", got, tt.want)
			}
		})
	}
}
