package sqlinline

const QInsertTask = `--sql ad51abcb-756d-49f9-b141-21c828b28abe
insert into generation_tasks (
  id,
  provider_task_id,
  user_id,
  mode,
  prompt,
  num_images,
  image_urls,
  status,
  images,
  error,
  credits_reserved,
  credits_deducted,
  version,
  created_at,
  updated_at
) values (
  $1::uuid,
  nullif($2::text, ''),
  $3::uuid,
  $4::text,
  $5::text,
  $6::int,
  $7::jsonb,
  $8::text,
  $9::jsonb,
  $10::text,
  $11::int,
  $12::boolean,
  $13::int,
  $14::timestamptz,
  $15::timestamptz
);
`

const QAttachProviderTask = `--sql f9c2ad64-e702-4bac-8379-14aee60dcf12
update generation_tasks
set provider_task_id = $2::text,
    version = version + 1
where id = $1::uuid
  and (provider_task_id is null or provider_task_id = $2::text)
returning
  id::text, coalesce(provider_task_id, ''), user_id::text, mode, prompt, num_images, image_urls,
  status, images, error, credits_reserved, credits_deducted, effects_applied, version, created_at, updated_at, completed_at;
`

const QSelectTaskByID = `--sql 3ba57884-e1fa-4e3a-a352-926fbc70de56
select
  id::text, coalesce(provider_task_id, ''), user_id::text, mode, prompt, num_images, image_urls,
  status, images, error, credits_reserved, credits_deducted, effects_applied, version, created_at, updated_at, completed_at
from generation_tasks
where id = $1::uuid
limit 1;
`

const QSelectTaskByProviderID = `--sql 987d4c96-fffe-40f1-9ae3-d667e307eb13
select
  id::text, coalesce(provider_task_id, ''), user_id::text, mode, prompt, num_images, image_urls,
  status, images, error, credits_reserved, credits_deducted, effects_applied, version, created_at, updated_at, completed_at
from generation_tasks
where provider_task_id = $1::text
limit 1;
`

// QUpdateTaskVersioned is the compare-and-set: it matches only when the stored
// version equals $2.
const QUpdateTaskVersioned = `--sql be80532b-c99a-4c2e-96c3-0891340d9a79
update generation_tasks
set status = $3::text,
    images = $4::jsonb,
    error = $5::text,
    credits_deducted = $6::boolean,
    updated_at = $7::timestamptz,
    completed_at = $8::timestamptz,
    version = version + 1
where id = $1::uuid
  and version = $2::int
returning
  id::text, coalesce(provider_task_id, ''), user_id::text, mode, prompt, num_images, image_urls,
  status, images, error, credits_reserved, credits_deducted, effects_applied, version, created_at, updated_at, completed_at;
`

const QTaskExists = `--sql 93b65885-f118-4ba0-84c9-2664dba72d4a
select exists(select 1 from generation_tasks where id = $1::uuid);
`

const QListStaleTasks = `--sql 4a173abb-34c7-4bfe-bf71-b57a47c7240d
select
  id::text, coalesce(provider_task_id, ''), user_id::text, mode, prompt, num_images, image_urls,
  status, images, error, credits_reserved, credits_deducted, effects_applied, version, created_at, updated_at, completed_at
from generation_tasks
where (status in ('pending', 'processing') or (credits_deducted and not effects_applied))
  and updated_at < $1::timestamptz
order by updated_at asc
limit $2::int;
`

const QListTasksByUser = `--sql b0569b80-5bfc-46ea-921a-8b3745452bb4
select
  id::text, coalesce(provider_task_id, ''), user_id::text, mode, prompt, num_images, image_urls,
  status, images, error, credits_reserved, credits_deducted, effects_applied, version, created_at, updated_at, completed_at
from generation_tasks
where user_id = $1::uuid
order by created_at desc
limit $2::int;
`

// QMarkTaskEffectsApplied records that the history or refund owed by a settled
// task reached the user row. It does not bump the version.
const QMarkTaskEffectsApplied = `--sql 5f0e7d2c-8a41-4c39-9b6e-2d7c1f4a9e30
update generation_tasks
set effects_applied = true
where id = $1::uuid
  and credits_deducted;
`
