// Package editor は投稿フォームの検証、保存用レコードへの変換、編集権限の判定を提供する。
package editor

import (
	"errors"
	"reflect"
	"strings"

	"cloud.google.com/go/civil"
	"github.com/go-playground/validator/v10"

	"github.com/hitoshi/clubhub/internal/model"
	"github.com/hitoshi/clubhub/internal/security"
)

// OverrideUsername は全投稿の編集・削除を許可される特別なユーザー名。
//
// ユーザー名は自己申告の文字列であり、この判定は認証でもセキュリティ境界でもない。
// 誰でもこの名前を名乗れば全投稿を編集できる。
const OverrideUsername = "headshot"

// Editor はフォームの検証と変換を行う。
type Editor struct {
	validate  *validator.Validate
	sanitizer security.TextSanitizer
}

// New はEditorを生成する。
func New(sanitizer security.TextSanitizer) *Editor {
	v := validator.New()
	// エラーのフィールド名にはJSON名を使う
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
		if name == "-" || name == "" {
			return f.Name
		}
		return name
	})
	return &Editor{validate: v, sanitizer: sanitizer}
}

// Validate はフォームを検証し、種別に応じた投稿レコードに変換する。
//
// 検証順序:
//  1. 種別が未知ならINVALID_KIND
//  2. クラブ名・イベント名からHTMLタグを除去
//  3. ユーザー名、クラブ名、開始日、終了日、申込リンクのいずれかが空ならMISSING_REQUIRED_FIELD
//  4. 日付がYYYY-MM-DDでなければINVALID_DATE
//  5. 終了日が開始日より前ならINVALID_DATE_RANGE（同日は有効）
//
// 返す投稿のID・CreatedAtは未設定。
func (e *Editor) Validate(form model.PostForm) (*model.Post, error) {
	if !form.Kind.Valid() {
		return nil, model.NewInvalidKindError(string(form.Kind))
	}

	form.ClubName = e.sanitizer.Clean(form.ClubName)
	form.EventName = e.sanitizer.Clean(form.EventName)

	if missing := e.missingFields(form); len(missing) > 0 {
		return nil, model.NewMissingRequiredFieldError(missing)
	}

	start, err := civil.ParseDate(form.StartDate)
	if err != nil {
		return nil, model.NewInvalidDateError("start_date", form.StartDate)
	}
	end, err := civil.ParseDate(form.EndDate)
	if err != nil {
		return nil, model.NewInvalidDateError("end_date", form.EndDate)
	}
	if end.Before(start) {
		return nil, model.NewInvalidDateRangeError()
	}

	post := &model.Post{
		Kind:      form.Kind,
		Username:  form.Username,
		ClubName:  form.ClubName,
		ClubLogo:  form.ClubLogo,
		StartDate: start,
		EndDate:   end,
	}
	switch form.Kind {
	case model.KindEvent:
		post.Event = &model.EventFields{
			EventName:        form.EventName,
			RegistrationLink: form.Link,
			WhatsappGroup:    form.WhatsappGroup,
			InstagramLink:    form.InstagramLink,
			LinkedinLink:     form.LinkedinLink,
		}
	case model.KindRecruitment:
		post.Recruitment = &model.RecruitmentFields{RecruitmentLink: form.Link}
	}

	return post, nil
}

// missingFields はrequiredタグの検証に失敗したフィールド名を返す。
// 申込リンクは種別ごとのフィールド名で報告する。
func (e *Editor) missingFields(form model.PostForm) []string {
	err := e.validate.Struct(form)
	if err == nil {
		return nil
	}

	var ve validator.ValidationErrors
	if !errors.As(err, &ve) {
		return []string{err.Error()}
	}

	fields := make([]string, 0, len(ve))
	for _, fe := range ve {
		name := fe.Field()
		if name == "link" {
			name = form.Kind.LinkField()
		}
		fields = append(fields, name)
	}
	return fields
}

// Authorize は現在のユーザー名で投稿を編集・削除できるかどうかを返す。
// 投稿者名と完全一致するか、OverrideUsernameであれば許可する。
// 単純な文字列比較であり、セキュリティ境界ではない。
func Authorize(currentUsername string, post *model.Post) bool {
	if post == nil {
		return false
	}
	return currentUsername == post.Username || currentUsername == OverrideUsername
}
