// Package model はドメインモデルを定義する。
package model

import (
	"time"

	"cloud.google.com/go/civil"
)

// Kind は投稿の種別を表す。
// 種別はどのテーブルに格納されているかではなく、明示的なタグとして保持する。
type Kind string

const (
	// KindEvent はイベント告知。
	KindEvent Kind = "event"
	// KindRecruitment はメンバー募集告知。
	KindRecruitment Kind = "recruitment"
)

// Kinds は全種別を定義順に返す。
func Kinds() []Kind {
	return []Kind{KindEvent, KindRecruitment}
}

// Valid は定義済みの種別かどうかを返す。
func (k Kind) Valid() bool {
	return k == KindEvent || k == KindRecruitment
}

// Collection は種別に対応するテーブル（コレクション）名を返す。
func (k Kind) Collection() string {
	switch k {
	case KindEvent:
		return "events"
	case KindRecruitment:
		return "recruitments"
	default:
		return ""
	}
}

// LinkField は種別ごとの申込リンクのフィールド名を返す。
func (k Kind) LinkField() string {
	switch k {
	case KindEvent:
		return "registration_link"
	case KindRecruitment:
		return "recruitment_link"
	default:
		return "link"
	}
}

// ParseKind は種別文字列を解析する。未知の値の場合はINVALID_KINDエラーを返す。
func ParseKind(s string) (Kind, error) {
	k := Kind(s)
	if !k.Valid() {
		return "", NewInvalidKindError(s)
	}
	return k, nil
}

// ParseCollection はコレクション名（events / recruitments）から種別を解析する。
func ParseCollection(collection string) (Kind, error) {
	for _, k := range Kinds() {
		if k.Collection() == collection {
			return k, nil
		}
	}
	return "", NewInvalidKindError(collection)
}

// Post はイベントとメンバー募集に共通する投稿を表す。
// Kindに対応する EventまたはRecruitment のどちらか一方のみが設定される。
type Post struct {
	ID        string
	Kind      Kind
	Username  string // 所有者を名乗る自由入力文字列。認証はされない
	ClubName  string
	ClubLogo  string
	StartDate civil.Date
	EndDate   civil.Date
	CreatedAt time.Time

	Event       *EventFields
	Recruitment *RecruitmentFields
}

// EventFields はイベント固有のフィールド。
type EventFields struct {
	EventName        string
	RegistrationLink string
	WhatsappGroup    string
	InstagramLink    string
	LinkedinLink     string
}

// RecruitmentFields はメンバー募集固有のフィールド。
type RecruitmentFields struct {
	RecruitmentLink string
}

// Link は種別に応じた申込リンクを返す。
func (p *Post) Link() string {
	switch {
	case p.Kind == KindEvent && p.Event != nil:
		return p.Event.RegistrationLink
	case p.Kind == KindRecruitment && p.Recruitment != nil:
		return p.Recruitment.RecruitmentLink
	default:
		return ""
	}
}

// PostForm はユーザーが入力する作成・編集フォームを表す。
// 申込リンクは種別にかかわらずLinkに入力され、保存時に種別ごとのフィールドへ振り分けられる。
// 任意項目は未入力でも空文字列のまま保存される。
type PostForm struct {
	Kind          Kind   `json:"type"`
	Username      string `json:"username" validate:"required"`
	ClubName      string `json:"club_name" validate:"required"`
	ClubLogo      string `json:"club_logo"`
	EventName     string `json:"event_name"`
	StartDate     string `json:"start_date" validate:"required"`
	EndDate       string `json:"end_date" validate:"required"`
	Link          string `json:"link" validate:"required"`
	WhatsappGroup string `json:"whatsapp_group"`
	InstagramLink string `json:"instagram_link"`
	LinkedinLink  string `json:"linkedin_link"`
}
