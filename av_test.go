package main

import (
	"testing"
)

func TestParseAudioFirstByte(t *testing.T) {
	// AAC, 44.1 kHz enum, 16-bit, stereo
	info := parseAudioFirstByte([]byte{0xAF, 0x01})

	if info.codec != AUDIO_CODEC_AAC {
		t.Errorf("Expected codec 10, got %d", info.codec)
	}
	if info.codec_name != "AAC" {
		t.Errorf("Expected AAC, got '%s'", info.codec_name)
	}
	if info.sample_rate != 44100 {
		t.Errorf("Expected 44100, got %d", info.sample_rate)
	}
	if info.channels != 2 {
		t.Errorf("Expected stereo, got %d channels", info.channels)
	}

	// MP3, 22.05 kHz enum, mono
	info = parseAudioFirstByte([]byte{0x28, 0x01})

	if info.codec != 2 {
		t.Errorf("Expected codec 2, got %d", info.codec)
	}
	if info.codec_name != "MP3" {
		t.Errorf("Expected MP3, got '%s'", info.codec_name)
	}
	if info.sample_rate != 22050 {
		t.Errorf("Expected 22050, got %d", info.sample_rate)
	}
	if info.channels != 1 {
		t.Errorf("Expected mono, got %d channels", info.channels)
	}
}

func TestParseAudioFixedRateCodecs(t *testing.T) {
	// Nellymoser16 (4) is always 16 kHz
	info := parseAudioFirstByte([]byte{0x40, 0x00})
	if info.sample_rate != 16000 {
		t.Errorf("Expected 16000, got %d", info.sample_rate)
	}

	// Nellymoser8 (5) is always 8 kHz
	info = parseAudioFirstByte([]byte{0x50, 0x00})
	if info.sample_rate != 8000 {
		t.Errorf("Expected 8000, got %d", info.sample_rate)
	}
}

func TestReadAACSpecificConfig(t *testing.T) {
	// AAC-LC, 44.1 kHz, 2 channels (0x12 0x10)
	config := readAACSpecificConfig([]byte{0xAF, 0x00, 0x12, 0x10})

	if config.object_type != 2 {
		t.Errorf("Expected object type 2, got %d", config.object_type)
	}
	if config.sample_rate != 44100 {
		t.Errorf("Expected 44100, got %d", config.sample_rate)
	}
	if config.channels != 2 {
		t.Errorf("Expected 2 channels, got %d", config.channels)
	}
	if getAACProfileName(config) != "LC" {
		t.Errorf("Expected LC profile, got '%s'", getAACProfileName(config))
	}
}

func TestReadH264ProfileAndLevel(t *testing.T) {
	// AVCDecoderConfigurationRecord with no SPS entries:
	// profile High (100), level 3.1
	header := []byte{0x17, 0x00, 0x00, 0x00, 0x00, 0x01, 0x64, 0x00, 0x1F, 0xFF, 0xE0}

	info := readH264SpecificConfig(header)

	if info.codec != VIDEO_CODEC_H264 {
		t.Errorf("Expected codec 7, got %d", info.codec)
	}
	if info.codec_name != "H264" {
		t.Errorf("Expected H264, got '%s'", info.codec_name)
	}
	if info.profile != "High" {
		t.Errorf("Expected High profile, got '%s'", info.profile)
	}
	if info.level != float32(31)/10 {
		t.Errorf("Expected level 3.1, got %f", info.level)
	}
}

func TestReadVideoSpecificConfigUnknownCodec(t *testing.T) {
	info := readVideoSpecificConfig([]byte{0x12, 0x00})

	if info.codec != 2 {
		t.Errorf("Expected codec 2, got %d", info.codec)
	}
	if info.codec_name != "Sorenson-H263" {
		t.Errorf("Expected Sorenson-H263, got '%s'", info.codec_name)
	}
}

func TestBitopRead(t *testing.T) {
	b := createBitop([]byte{0b10110011, 0b01000000})

	if v := b.Read(3); v != 0b101 {
		t.Errorf("Expected 0b101, got %b", v)
	}
	if v := b.Read(5); v != 0b10011 {
		t.Errorf("Expected 0b10011, got %b", v)
	}
	if v := b.Read(2); v != 0b01 {
		t.Errorf("Expected 0b01, got %b", v)
	}
}

func TestBitopReadGolomb(t *testing.T) {
	// 010 encodes 1, 011 encodes 2
	b := createBitop([]byte{0b01001100})

	if v := b.ReadGolomb(); v != 1 {
		t.Errorf("Expected 1, got %d", v)
	}
	if v := b.ReadGolomb(); v != 2 {
		t.Errorf("Expected 2, got %d", v)
	}
}

func TestBitopLookDoesNotAdvance(t *testing.T) {
	b := createBitop([]byte{0xF0})

	if v := b.Look(4); v != 0x0F {
		t.Errorf("Expected 0x0F, got %x", v)
	}
	if v := b.Read(4); v != 0x0F {
		t.Errorf("Expected the same 0x0F after Look, got %x", v)
	}
}
